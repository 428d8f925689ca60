package store

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitalproof/internal/proof"
	"vitalproof/pkg/platform/sentinel"
)

var generatedAt = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newProof(id string) *proof.Proof {
	return &proof.Proof{
		ProofID:   id,
		UserID:    "user-1",
		ProofType: proof.TypeCompliance,
		CircuitID: proof.CircuitID,
		PublicInputs: proof.PublicInputs{
			MetricType:      "oxygen_saturation",
			MinValue:        93,
			MaxValue:        99,
			ContextHash:     "ab",
			ConstraintSetID: "7f2c1a4e-9b1d-4c3e-8a5f-2d6b7c8e9f01",
			ProofType:       proof.TypeCompliance,
			Claim:           proof.ClaimNonCompliant,
			GeneratedAt:     generatedAt,
		},
		PublicInputsHash: "cd",
		Commitment:       "ef",
		GeneratedAt:      generatedAt,
	}
}

func TestInMemoryStoreMarkVerifiedOnce(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newProof("prf_1")))
	assert.ErrorIs(t, s.Create(ctx, newProof("prf_1")), sentinel.ErrConflict)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		flips   int
		results = map[time.Time]struct{}{}
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			at, flipped, err := s.MarkVerified(ctx, "prf_1", generatedAt.Add(time.Duration(i)*time.Second))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if flipped {
				flips++
			}
			results[at] = struct{}{}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, flips)
	assert.Len(t, results, 1, "every caller sees the same verified_at")

	got, err := s.FindByID(ctx, "prf_1")
	require.NoError(t, err)
	assert.True(t, got.Verified)

	_, _, err = s.MarkVerified(ctx, "prf_missing", generatedAt)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, newProof("prf_1")))

	got, err := s.FindByID(ctx, "prf_1")
	require.NoError(t, err)
	got.Commitment = "tampered"

	again, err := s.FindByID(ctx, "prf_1")
	require.NoError(t, err)
	assert.Equal(t, "ef", again.Commitment)
}

func TestPostgresStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := newProof("prf_1")

	insert := regexp.QuoteMeta("INSERT INTO proofs")
	mock.ExpectExec(insert).
		WithArgs("prf_1", "user-1", "compliance", proof.CircuitID, "oxygen_saturation", 93.0, 99.0,
			"ab", p.PublicInputs.ConstraintSetID, "non-compliant", "cd", "ef", generatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnError(&pq.Error{Code: "23505"})

	s := NewPostgres(db)
	require.NoError(t, s.Create(context.Background(), p))
	assert.ErrorIs(t, s.Create(context.Background(), p), sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := newProof("prf_1")

	rows := sqlmock.NewRows([]string{"proof_id", "user_id", "proof_type", "circuit_id", "metric_type",
		"min_value", "max_value", "context_hash", "constraint_set_id", "claim", "public_inputs_hash",
		"commitment", "generated_at", "verified", "verified_at"}).
		AddRow("prf_1", "user-1", "compliance", proof.CircuitID, "oxygen_saturation", 93.0, 99.0,
			"ab", p.PublicInputs.ConstraintSetID, "non-compliant", "cd", "ef", generatedAt, false, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM proofs WHERE proof_id = $1")).WithArgs("prf_1").WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("FROM proofs WHERE proof_id = $1")).WithArgs("prf_2").WillReturnError(sql.ErrNoRows)

	s := NewPostgres(db)
	got, err := s.FindByID(context.Background(), "prf_1")
	require.NoError(t, err)
	assert.Equal(t, p.PublicInputs, got.PublicInputs)
	assert.Nil(t, got.VerifiedAt)

	_, err = s.FindByID(context.Background(), "prf_2")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreMarkVerified(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	first := generatedAt.Add(time.Minute)
	second := generatedAt.Add(time.Hour)

	update := regexp.QuoteMeta("WHERE proof_id = $1 AND verified = FALSE")
	mock.ExpectQuery(update).WithArgs("prf_1", first).
		WillReturnRows(sqlmock.NewRows([]string{"verified_at"}).AddRow(first))
	mock.ExpectQuery(update).WithArgs("prf_1", second).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT verified_at FROM proofs")).WithArgs("prf_1").
		WillReturnRows(sqlmock.NewRows([]string{"verified_at"}).AddRow(first))

	s := NewPostgres(db)
	at, flipped, err := s.MarkVerified(context.Background(), "prf_1", first)
	require.NoError(t, err)
	assert.True(t, flipped)
	assert.Equal(t, first, at)

	at, flipped, err = s.MarkVerified(context.Background(), "prf_1", second)
	require.NoError(t, err)
	assert.False(t, flipped)
	assert.Equal(t, first, at)
	require.NoError(t, mock.ExpectationsWereMet())
}
