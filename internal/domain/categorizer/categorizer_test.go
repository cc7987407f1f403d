package categorizer

import (
	"regexp"
	"testing"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/matcher"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCache for testing
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string) (string, bool) {
	args := m.Called(key)
	return args.String(0), args.Bool(1)
}

func (m *MockCache) Set(key string, value string) {
	m.Called(key, value)
}

func record(id, source string, day int, dir txn.Direction, amount, desc string) txn.Transaction {
	return txn.Transaction{
		ID:          id,
		OccurredOn:  txn.Date(2012, time.June, day),
		Direction:   dir,
		Magnitude:   decimal.RequireFromString(amount),
		Description: desc,
		SourceID:    source,
		SegmentID:   source + "#1",
	}
}

func mustCompile(t *testing.T, specs []RuleSpec) []Rule {
	t.Helper()
	rules, err := Compile(specs)
	require.NoError(t, err)
	return rules
}

func TestCategorizer_FirstMatchWins(t *testing.T) {
	// Arrange
	rules := mustCompile(t, []RuleSpec{
		{Name: "fees", Tag: "bank_fees", Any: []string{"fee"}},
		{Name: "atm", Tag: "cash", Any: []string{"atm"}},
	})
	c := NewCategorizer(rules, nil)

	// Act
	got := c.Classify(record("r1", "chequing", 1, txn.Debit, "3.00", "atm withdrawal fee"))

	// Assert
	assert.Equal(t, "bank_fees", got.Tag)
	assert.Equal(t, "fees", got.Rule)
	assert.Equal(t, "r1", got.RecordID)
	assert.False(t, got.IsProbableTransfer)
}

func TestCategorizer_Fallback(t *testing.T) {
	c := NewCategorizer(mustCompile(t, DefaultRules()), nil)

	got := c.Classify(record("r1", "chequing", 1, txn.Debit, "12.00", "mystery vendor"))

	assert.Equal(t, Uncategorized, got.Tag)
	assert.Empty(t, got.Rule)

	tag, ok := c.Tag(record("r1", "chequing", 1, txn.Debit, "12.00", "mystery vendor"))
	assert.Equal(t, Uncategorized, tag)
	assert.False(t, ok)
}

func TestCategorizer_DefaultRules(t *testing.T) {
	c := NewCategorizer(mustCompile(t, DefaultRules()), nil)

	cases := []struct {
		desc     string
		dir      txn.Direction
		tag      string
		transfer bool
	}{
		{"transfer to savings", txn.Debit, "transfer", true},
		{"monthly fee", txn.Debit, "bank_fees", false},
		{"interest", txn.Credit, "interest_income", false},
		{"city hydro", txn.Debit, "utilities", false},
		{"deposit reservation 88231", txn.Credit, "sales", false},
		{"deposit reservation 88231", txn.Debit, Uncategorized, false},
	}
	for _, tc := range cases {
		t.Run(tc.desc+" "+string(tc.dir), func(t *testing.T) {
			got := c.Classify(record("r", "chequing", 1, tc.dir, "10.00", tc.desc))
			assert.Equal(t, tc.tag, got.Tag)
			assert.Equal(t, tc.transfer, got.IsProbableTransfer)
		})
	}
}

func TestPredicates(t *testing.T) {
	r := record("r1", "visa", 1, txn.Debit, "45.00", "Home Depot store 0042")

	assert.True(t, KeywordAny("depot", "lowes").Match(r))
	assert.False(t, KeywordAny("dep").Match(r), "whole words only")
	assert.True(t, KeywordAll("home depot", "store").Match(r))
	assert.False(t, KeywordAll("home", "lowes").Match(r))
	assert.True(t, Pattern(regexp.MustCompile(`(?i)store \d+`)).Match(r))
	assert.True(t, DirectionIs(txn.Debit).Match(r))
	assert.True(t, AmountRange(decimal.NewNullDecimal(decimal.NewFromInt(10)), decimal.NullDecimal{}).Match(r))
	assert.False(t, AmountRange(decimal.NullDecimal{}, decimal.NewNullDecimal(decimal.NewFromInt(40))).Match(r))
	assert.True(t, SourceIs("amex", "visa").Match(r))
	assert.False(t, And(SourceIs("visa"), DirectionIs(txn.Credit)).Match(r))
	assert.Equal(t, "source(visa) & direction(credit)", And(SourceIs("visa"), DirectionIs(txn.Credit)).String())
}

func TestCompile_ReportsEveryProblem(t *testing.T) {
	_, err := Compile([]RuleSpec{
		{Name: "ok", Tag: "a", Any: []string{"x"}},
		{Name: "no-tag", Any: []string{"x"}},
		{Name: "bad-regex", Tag: "b", Pattern: "("},
		{Name: "no-conditions", Tag: "c"},
		{Name: "ok", Tag: "d", Any: []string{"y"}},
		{Name: "bad-amount", Tag: "e", MinAmount: "ten"},
		{Name: "bad-direction", Tag: "f", Direction: "up"},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRule)
	for _, name := range []string{"rule 1", "rule 2", "rule 3", "rule 4", "rule 5", "rule 6"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestCompile_AmountAndSources(t *testing.T) {
	rules := mustCompile(t, []RuleSpec{
		{Tag: "large_visa", MinAmount: "100", Sources: []string{"visa"}, Direction: "DEBIT"},
	})
	require.Len(t, rules, 1)
	assert.Equal(t, "large_visa", rules[0].Name, "name defaults to tag")

	c := NewCategorizer(rules, nil)
	assert.Equal(t, "large_visa", c.Classify(record("a", "visa", 1, txn.Debit, "150.00", "x")).Tag)
	assert.Equal(t, Uncategorized, c.Classify(record("b", "visa", 1, txn.Debit, "50.00", "x")).Tag)
	assert.Equal(t, Uncategorized, c.Classify(record("c", "amex", 1, txn.Debit, "150.00", "x")).Tag)
}

func TestCategorizer_UsesCache(t *testing.T) {
	mockCache := new(MockCache)
	rules := mustCompile(t, []RuleSpec{{Name: "rent", Tag: "rent", Any: []string{"rent"}}})
	c := NewCategorizer(rules, mockCache)

	r := record("r1", "chequing", 1, txn.Debit, "900.00", "office rent")
	key := cacheKey(r)

	mockCache.On("Get", key).Return("", false).Once()
	mockCache.On("Set", key, "rent").Return().Once()
	assert.Equal(t, "rent", c.Classify(r).Tag)

	mockCache.On("Get", key).Return("rent", true).Once()
	assert.Equal(t, "rent", c.Classify(r).Tag)

	mockCache.AssertExpectations(t)
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set("k", "v")

	v, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, cache.Size())
}

func TestDetectTransfers(t *testing.T) {
	// Arrange
	records := []txn.Transaction{
		record("chq-1", "chequing", 1, txn.Debit, "500.00", "transfer to savings"),
		record("sav-1", "savings", 2, txn.Credit, "500.00", "transfer from chequing"),
		record("chq-2", "chequing", 3, txn.Credit, "500.00", "customer deposit"),
		record("visa-1", "visa", 1, txn.Credit, "500.00", "payment thank you"),
		record("chq-3", "chequing", 5, txn.Debit, "42.00", "hydro"),
	}

	// Act
	pairs, err := DetectTransfers(records, matcher.Transfers(), []string{"chequing", "savings"})

	// Assert
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "chq-1", pairs[0].Debit.ID)
	assert.Equal(t, "sav-1", pairs[0].Credit.ID)
	assert.NotEmpty(t, pairs[0].Breakdown)

	classes := NewCategorizer(nil, nil).ClassifyAll(records)
	marked := MarkTransfers(classes, pairs)
	assert.True(t, marked[0].IsProbableTransfer)
	assert.Equal(t, "sav-1", marked[0].Counterpart)
	assert.True(t, marked[1].IsProbableTransfer)
	assert.Equal(t, "chq-1", marked[1].Counterpart)
	assert.False(t, marked[2].IsProbableTransfer)
	assert.False(t, classes[0].IsProbableTransfer, "input is not modified")
}

func TestDetectTransfers_InvalidConfig(t *testing.T) {
	cfg := matcher.Transfers()
	cfg.WindowDays = -1

	_, err := DetectTransfers(nil, cfg, nil)
	assert.ErrorIs(t, err, matcher.ErrInvalidConfig)
}
