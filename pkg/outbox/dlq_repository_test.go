package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobennaogbu/kobocart-backend/pkg/db/models"
	"github.com/tobennaogbu/kobocart-backend/pkg/enums"
)

func newDLQEntry(eventID uuid.UUID, failedAt time.Time) models.OutboxDLQ {
	return models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       eventID,
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  10,
		FailedAt:      failedAt,
	}
}

func TestDLQInsertTxTruncatesLongErrors(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()

	eventID := uuid.New()
	entry := newDLQEntry(eventID, time.Now().UTC())
	long := strings.Repeat("x", maxDLQErrorLen+200)
	entry.ErrorMessage = &long

	require.NoError(t, repo.InsertTx(db, entry))

	found, err := repo.FindByEventID(ctx, eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, eventID, found.EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, found.ErrorReason)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)
}

func TestDLQInsertTxRequiresTx(t *testing.T) {
	repo := NewDLQRepository(setupOutboxTestDB(t))

	err := repo.InsertTx(nil, models.OutboxDLQ{})
	require.Error(t, err)
}

func TestDLQFindByEventIDMissing(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewDLQRepository(db)

	found, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestDLQListNewestFirst(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewDLQRepository(db)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		entry := newDLQEntry(uuid.New(), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.InsertTx(db, entry))
		ids = append(ids, entry.ID)
	}

	rows, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)

	rows, err = repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}
