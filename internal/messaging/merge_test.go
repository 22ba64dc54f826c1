package messaging

import (
	"testing"
	"time"

	"github.com/autocare360/autocare-backend/internal/models"
	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func msg(id uint64, sender uint, receiver *uint, offset time.Duration) models.Message {
	return models.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		SenderRole: models.RoleCustomer,
		Body:       "hello",
		CreatedAt:  base.Add(offset),
	}
}

func ids(list []models.Message) []uint64 {
	out := make([]uint64, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}

func TestMerge_Idempotent(t *testing.T) {
	a := msg(1, 10, nil, 0)
	b := msg(2, 10, nil, time.Second)

	once := Merge(nil, a, b)
	twice := Merge(once, a, b)

	assert.Equal(t, ids(once), ids(twice))
	assert.Len(t, twice, 2)
}

func TestMerge_OrdersByCreatedAtThenID(t *testing.T) {
	late := msg(1, 10, nil, 2*time.Second)
	tieHigh := msg(5, 10, nil, time.Second)
	tieLow := msg(3, 10, nil, time.Second)
	early := msg(9, 10, nil, 0)

	got := Merge([]models.Message{late}, tieHigh, early, tieLow)

	assert.Equal(t, []uint64{9, 3, 5, 1}, ids(got))
}

func TestMerge_OutOfOrderPushes(t *testing.T) {
	// Pushes arrive as 3, 1, 2; the view must still read 1, 2, 3.
	var list []models.Message
	for _, m := range []models.Message{
		msg(3, 10, nil, 3*time.Second),
		msg(1, 10, nil, time.Second),
		msg(2, 10, nil, 2*time.Second),
	} {
		list = Merge(list, m)
	}

	assert.Equal(t, []uint64{1, 2, 3}, ids(list))
}

func TestMerge_FetchAndPushOfSameMessage(t *testing.T) {
	pushed := msg(7, 10, nil, 0)
	fetched := []models.Message{msg(6, 11, uintPtr(10), -time.Second), msg(7, 10, nil, 0)}

	got := Merge(fetched, pushed)

	assert.Equal(t, []uint64{6, 7}, ids(got))
}

func TestMerge_ReadNeverReverts(t *testing.T) {
	read := msg(1, 10, nil, 0)
	read.IsRead = true
	readAt := base.Add(time.Minute)
	read.ReadAt = &readAt

	stale := msg(1, 10, nil, 0)

	assert.True(t, Merge([]models.Message{read}, stale)[0].IsRead)

	got := Merge([]models.Message{stale}, read)
	assert.True(t, got[0].IsRead)
	assert.Equal(t, &readAt, got[0].ReadAt)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	list := []models.Message{msg(2, 10, nil, time.Second), msg(1, 10, nil, 0)}
	read := list[0]
	read.IsRead = true

	_ = Merge(list, read)

	assert.Equal(t, uint64(2), list[0].ID)
	assert.False(t, list[0].IsRead)
}

func TestScope_Pair(t *testing.T) {
	s := PairScope(1, 2)

	assert.True(t, s.Relevant(&models.Message{SenderID: 1, ReceiverID: uintPtr(2)}))
	assert.True(t, s.Relevant(&models.Message{SenderID: 2, ReceiverID: uintPtr(1)}))
	assert.False(t, s.Relevant(&models.Message{SenderID: 2, ReceiverID: uintPtr(3)}))
	assert.False(t, s.Relevant(&models.Message{SenderID: 2}))
	assert.Equal(t, uint(2), s.ReadCounterpart())
	assert.Equal(t, uint(2), *s.ReplyTo())
}

func TestScope_CustomerSpansEveryEmployee(t *testing.T) {
	const customer, alice, bob, other = 5, 1, 2, 6
	s := CustomerScope(customer)

	assert.True(t, s.Relevant(&models.Message{SenderID: customer}))
	assert.True(t, s.Relevant(&models.Message{SenderID: alice, ReceiverID: uintPtr(customer)}))
	assert.True(t, s.Relevant(&models.Message{SenderID: bob, ReceiverID: uintPtr(customer)}))
	assert.False(t, s.Relevant(&models.Message{SenderID: other}))
	assert.False(t, s.Relevant(&models.Message{SenderID: alice, ReceiverID: uintPtr(other)}))
	assert.Equal(t, models.PoolCounterpart, s.ReadCounterpart())
	assert.Nil(t, s.ReplyTo())
}

func TestScope_PoolCustomer(t *testing.T) {
	s := PoolCustomerScope(1, 5)

	assert.True(t, s.Relevant(&models.Message{SenderID: 2, ReceiverID: uintPtr(5)}))
	assert.True(t, s.Relevant(&models.Message{SenderID: 5}))
	assert.False(t, s.Relevant(&models.Message{SenderID: 1, ReceiverID: uintPtr(2)}))
	assert.Equal(t, uint(5), s.ReadCounterpart())
	assert.Equal(t, uint(5), *s.ReplyTo())
}
