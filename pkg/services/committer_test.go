package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nihar1310/SalesAgent-sub001/pkg/models"
)

func TestCommitter_Commit(t *testing.T) {
	p := newPipeline(t, nil)
	existing := p.catalog.addMaterial("MORTAR HS", models.ProvenanceMaster)
	p.reload(t)

	ext := sampleExtraction()
	ext.Items = append(ext.Items,
		models.ExtractedItem{MaterialText: "FB 30-35 STD", Rate: decimal.RequireFromString("51.00"), Unit: "NOS", Currency: "INR"},
		models.ExtractedItem{MaterialText: "CASTABLE LC-60", Rate: decimal.Zero, Unit: "MT", Currency: "INR"},
	)
	ext.Terms = &models.CommercialTerms{Delivery: "FOR site"}
	received := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	out, err := p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-1", ThreadID: "t-1", ReceivedAt: received},
		Extraction: ext,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Entries)
	assert.Equal(t, 1, out.Skipped, "zero rate is skipped")
	assert.Equal(t, existing.ID, out.MaterialIDs[1])
	assert.Equal(t, out.MaterialIDs[0], out.MaterialIDs[2], "one email creates a name once")
	assert.Len(t, out.createdMaterials, 1)
	assert.Len(t, out.createdClients, 1)

	for _, e := range p.prices.entries {
		assert.Equal(t, out.ClientID, e.ClientID)
		assert.Equal(t, received, e.QuotedAt, "received time stands in for a missing quotation date")
		assert.Equal(t, "FOR site", e.DeliveryTerms)
		assert.Equal(t, "m-1", e.SourceMessageID)
		assert.Equal(t, "t-1", e.SourceThreadID)
	}

	// Nothing reaches the resolver before Publish.
	assert.False(t, p.resolver.MatchMaterial("FB 30-35 STD").Matched)
	p.committer.Publish(out)
	assert.True(t, p.resolver.MatchMaterial("FB 30-35 STD").Matched)
}

func TestCommitter_Commit_NoClientSkipsEverything(t *testing.T) {
	p := newPipeline(t, nil)
	ext := sampleExtraction()
	ext.Client = nil

	out, err := p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-1"},
		Extraction: ext,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Entries)
	assert.Equal(t, 2, out.Skipped)
	assert.Equal(t, 0, p.prices.count())
}

func TestCommitter_Commit_QuotationDateWins(t *testing.T) {
	p := newPipeline(t, nil)
	ext := sampleExtraction()
	quoted := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	ext.QuotedAt = &quoted

	_, err := p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-1", ReceivedAt: quoted.AddDate(0, 1, 0)},
		Extraction: ext,
	})
	require.NoError(t, err)
	for _, e := range p.prices.entries {
		assert.Equal(t, quoted, e.QuotedAt)
	}
}

func TestCommitter_Commit_AppendError(t *testing.T) {
	p := newPipeline(t, nil)
	p.prices.err = errors.New("connection reset")

	_, err := p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-1"},
		Extraction: sampleExtraction(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append price for item 0")
}

func TestCommitter_Commit_ClientOverride(t *testing.T) {
	p := newPipeline(t, nil)
	client := p.catalog.addClient("Shree Cement Limited", "", models.ProvenanceMaster)

	out, err := p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-1"},
		Extraction: sampleExtraction(),
		ClientID:   &client.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, client.ID, out.ClientID)
	assert.Empty(t, out.createdClients)

	missing := uuid.New()
	_, err = p.committer.Commit(context.Background(), CommitRequest{
		Source:     models.SourceMessage{MessageID: "m-2"},
		Extraction: sampleExtraction(),
		ClientID:   &missing,
	})
	assert.Error(t, err)
}

func TestCommitter_Preview(t *testing.T) {
	p := newPipeline(t, nil)
	mortar := p.catalog.addMaterial("MORTAR HS", models.ProvenanceMaster)
	p.reload(t)

	preview := p.committer.Preview(sampleExtraction())

	require.Len(t, preview.Items, 2)
	assert.False(t, preview.Items[0].Matched)
	assert.True(t, preview.Items[1].Matched)
	assert.Equal(t, mortar.ID, preview.Items[1].EntityID)
	assert.False(t, preview.Client.Matched)
	assert.Equal(t, 0, p.prices.count())
	assert.Len(t, p.catalog.materials, 1, "preview never creates entities")
}
