package database

import (
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/bimakw/deposit-tracker/internal/domain"
	"github.com/bimakw/deposit-tracker/internal/domain/entities"
)

func TestStorageErr(t *testing.T) {
	t.Run("unique violation maps to conflict", func(t *testing.T) {
		raw := &pq.Error{Code: pqUniqueViolation, Message: "duplicate key value"}
		err := storageErr("insert deposit", raw)

		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Expected ErrConflict, got %v", err)
		}
		if errors.Is(err, domain.ErrStorage) {
			t.Error("Conflict should not also be a storage error")
		}
		var pqErr *pq.Error
		if !errors.As(err, &pqErr) {
			t.Error("Expected underlying pq error to be preserved")
		}
	})

	t.Run("other errors map to storage", func(t *testing.T) {
		err := storageErr("load last timestamp", errors.New("connection reset"))

		if !errors.Is(err, domain.ErrStorage) {
			t.Errorf("Expected ErrStorage, got %v", err)
		}
		if !strings.HasPrefix(err.Error(), "failed to load last timestamp") {
			t.Errorf("Unexpected message %q", err.Error())
		}
	})
}

func TestDepositRepo_BuildFilterQuery(t *testing.T) {
	repo := &DepositRepo{}

	t.Run("user only", func(t *testing.T) {
		query, args := repo.buildFilterQuery(entities.DefaultDepositFilter(7), false)

		if !strings.Contains(query, "WHERE user_id = $1") {
			t.Errorf("Missing user condition in %q", query)
		}
		if !strings.Contains(query, "LIMIT $2 OFFSET $3") {
			t.Errorf("Unexpected paging placeholders in %q", query)
		}
		if len(args) != 3 || args[0] != int64(7) || args[1] != 50 || args[2] != 0 {
			t.Errorf("Unexpected args %v", args)
		}
	})

	t.Run("token filter count", func(t *testing.T) {
		token := "0xtoken"
		filter := entities.DefaultDepositFilter(7)
		filter.TokenAddress = &token

		query, args := repo.buildFilterQuery(filter, true)

		if !strings.HasPrefix(query, "SELECT COUNT(*) FROM deposits WHERE user_id = $1 AND token_address = $2") {
			t.Errorf("Unexpected count query %q", query)
		}
		if len(args) != 2 || args[1] != token {
			t.Errorf("Unexpected args %v", args)
		}
	})
}
