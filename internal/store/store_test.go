//go:build integration

// Package store integration tests run against a real SurrealDB container.
// Run with: go test -tags integration ./internal/store/
package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/casemind/casemind-go/internal/models"
)

const testDimension = 8

var testStore *Client
var testContainer testcontainers.Container

func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testStore, err = NewClient(ctx, Config{
		URL:                fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace:          "test",
		Database:           "test",
		Username:           "root",
		Password:           "root",
		AuthLevel:          "root",
		EmbeddingDimension: testDimension,
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testStore.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testStore.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func testEmbedding() []float32 {
	embedding := make([]float32, testDimension)
	for i := range embedding {
		embedding[i] = float32(i) / testDimension
	}
	return embedding
}

func seedDocument(t *testing.T, text string) string {
	t.Helper()
	ctx := context.Background()

	fileID := models.FileID(models.ContentHash(text))
	err := testStore.UpsertDocument(ctx, &models.DocumentRecord{
		FileID:           fileID,
		ContentHash:      models.ContentHash(text),
		OriginalFilename: "judgment.pdf",
		PageCount:        3,
	})
	if err != nil {
		t.Fatalf("UpsertDocument failed: %v", err)
	}
	return fileID
}

func TestPing(t *testing.T) {
	if err := testStore.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestDocumentExists(t *testing.T) {
	ctx := context.Background()
	fileID := seedDocument(t, "exists test judgment text")

	exists, err := testStore.DocumentExists(ctx, fileID)
	if err != nil {
		t.Fatalf("DocumentExists failed: %v", err)
	}
	if !exists {
		t.Errorf("Expected document %s to exist", fileID)
	}

	exists, err = testStore.DocumentExists(ctx, models.FileID(models.ContentHash("never ingested")))
	if err != nil {
		t.Fatalf("DocumentExists failed: %v", err)
	}
	if exists {
		t.Errorf("Expected unknown document to not exist")
	}
}

func TestUpsertDocument_Idempotent(t *testing.T) {
	ctx := context.Background()
	text := "idempotent upsert judgment text"

	fileID := seedDocument(t, text)
	// A second upsert with the same content id must not fail.
	seedDocument(t, text)

	exists, err := testStore.DocumentExists(ctx, fileID)
	if err != nil {
		t.Fatalf("DocumentExists failed: %v", err)
	}
	if !exists {
		t.Errorf("Expected document to exist after double upsert")
	}
}

func TestUpsertMetadataSectionsChunks(t *testing.T) {
	ctx := context.Background()
	fileID := seedDocument(t, "full record family judgment text")

	err := testStore.UpsertMetadata(ctx, &models.MetadataRecord{
		MetadataID:  models.MetadataID(fileID),
		FileID:      fileID,
		CaseNumber:  "CRL.A. 123/2019",
		CaseTitle:   "State v. Sharma",
		CourtName:   "Delhi High Court",
		JudgesCoram: []string{"Justice A", "Justice B"},
	})
	if err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}

	err = testStore.UpsertSections(ctx, []models.SectionRecord{
		{
			SectionID:      models.SectionID(fileID, "case_facts"),
			FileID:         fileID,
			SectionName:    "case_facts",
			SequenceNumber: 0,
			Text:           "The appellant was convicted under Section 302.",
			Embedding:      testEmbedding(),
		},
		{
			SectionID:      models.SectionID(fileID, "judgement"),
			FileID:         fileID,
			SectionName:    "judgement",
			SequenceNumber: 5,
			Text:           "The appeal is dismissed.",
			Embedding:      testEmbedding(),
		},
	})
	if err != nil {
		t.Fatalf("UpsertSections failed: %v", err)
	}

	err = testStore.UpsertChunks(ctx, []models.ChunkRecord{
		{
			ChunkID:    models.ChunkID(fileID, 0),
			FileID:     fileID,
			ChunkIndex: 0,
			Text:       "chunk zero text",
			TokenCount: 3,
			Embedding:  testEmbedding(),
		},
	})
	if err != nil {
		t.Fatalf("UpsertChunks failed: %v", err)
	}
}

func TestDeleteByFileID(t *testing.T) {
	ctx := context.Background()
	fileID := seedDocument(t, "rollback target judgment text")

	err := testStore.UpsertSections(ctx, []models.SectionRecord{
		{
			SectionID:      models.SectionID(fileID, "reasoning"),
			FileID:         fileID,
			SectionName:    "reasoning",
			SequenceNumber: 4,
			Text:           "Reasoning text.",
			Embedding:      testEmbedding(),
		},
	})
	if err != nil {
		t.Fatalf("UpsertSections failed: %v", err)
	}

	deleted, err := testStore.DeleteByFileID(ctx, models.CollectionSections, fileID)
	if err != nil {
		t.Fatalf("DeleteByFileID failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted section, got %d", deleted)
	}

	deleted, err = testStore.DeleteByFileID(ctx, models.CollectionDocuments, fileID)
	if err != nil {
		t.Fatalf("DeleteByFileID failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted document, got %d", deleted)
	}

	exists, err := testStore.DocumentExists(ctx, fileID)
	if err != nil {
		t.Fatalf("DocumentExists failed: %v", err)
	}
	if exists {
		t.Errorf("Expected document gone after delete")
	}
}

func TestDeleteByFileID_UnknownCollection(t *testing.T) {
	_, err := testStore.DeleteByFileID(context.Background(), "not_a_table", "some-id")
	if err == nil {
		t.Fatal("Expected error for unknown collection")
	}
}
