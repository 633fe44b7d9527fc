package presence

import (
	"fmt"
	"sync"
	"testing"

	"talkroom/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRecordAndResolve(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	userID := uuid.New()

	req.NoError(table.Record("conn-1", userID))

	got, err := table.IdentityOf("conn-1")
	req.NoError(err)
	req.Equal(userID, got)
}

func TestRecordDuplicateConnection(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	req.NoError(table.Record("conn-1", uuid.New()))
	err := table.Record("conn-1", uuid.New())
	req.ErrorIs(err, domain.ErrAlreadyPresent)
}

func TestRecordThenRemove(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	req.NoError(table.Record("conn-1", uuid.New()))
	table.Remove("conn-1")

	_, err := table.IdentityOf("conn-1")
	req.ErrorIs(err, domain.ErrNotConnected)

	// Removing again is a no-op.
	table.Remove("conn-1")
}

func TestIdentityBehindMultipleConnections(t *testing.T) {
	req := require.New(t)
	table := NewTable()
	userID := uuid.New()

	req.NoError(table.Record("phone", userID))
	req.NoError(table.Record("laptop", userID))

	got, err := table.IdentityOf("phone")
	req.NoError(err)
	req.Equal(userID, got)

	table.Remove("phone")
	got, err = table.IdentityOf("laptop")
	req.NoError(err)
	req.Equal(userID, got)
}

func TestConcurrentLifecycles(t *testing.T) {
	req := require.New(t)
	table := NewTable()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", n)
			userID := uuid.New()
			if err := table.Record(connID, userID); err != nil {
				t.Error(err)
				return
			}
			got, err := table.IdentityOf(connID)
			if err != nil || got != userID {
				t.Errorf("conn %s resolved to %v, %v", connID, got, err)
			}
			table.Remove(connID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		_, err := table.IdentityOf(fmt.Sprintf("conn-%d", i))
		req.ErrorIs(err, domain.ErrNotConnected)
	}
}
