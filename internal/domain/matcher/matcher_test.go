package matcher

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create test transaction
func makeTransaction(id string, day int, dir txn.Direction, amount, desc string) txn.Transaction {
	return txn.Transaction{
		ID:          id,
		OccurredOn:  txn.Date(2012, time.June, day),
		Direction:   dir,
		Magnitude:   decimal.RequireFromString(amount),
		Description: desc,
		SourceID:    "test",
		SegmentID:   "test#1",
	}
}

func withRef(t txn.Transaction, ref string) txn.Transaction {
	t.ExtractedRef = ref
	return t
}

func withSource(t txn.Transaction, source string) txn.Transaction {
	t.SourceID = source
	t.SegmentID = source + "#1"
	return t
}

func newMatcher(t *testing.T, cfg Config, opts ...Option) *Matcher {
	t.Helper()
	m, err := NewMatcher(cfg, opts...)
	require.NoError(t, err)
	return m
}

func criteria(c Candidate) []Criterion {
	out := make([]Criterion, 0, len(c.Breakdown))
	for _, b := range c.Breakdown {
		out = append(out, b.Criterion)
	}
	return out
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestMatcher_ChequeReferenceMatch(t *testing.T) {
	// Arrange
	cfg := StatementVsLedger()
	cfg.WindowDays = 5
	m := newMatcher(t, cfg)
	source := withRef(makeTransaction("s1", 1, txn.Debit, "150.00", "chq 1042 supplier"), "1042")
	target := withRef(makeTransaction("t1", 2, txn.Debit, "150.00", "cheque 1042"), "1042")

	// Act
	out, err := m.Match([]txn.Transaction{source}, []txn.Transaction{target})

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	pair := out.Pairs[0]
	assert.Equal(t, "t1", pair.Target.ID)
	assert.InDelta(t, 158.0, pair.Score, 1e-9)
	assert.Equal(t, []Criterion{CriterionAmount, CriterionDate, CriterionReference}, criteria(pair.Candidate))
	assert.Equal(t, 1, pair.DateDiff)
	assert.True(t, pair.AmountMatch)
	assert.False(t, pair.Contested)
	assert.Empty(t, out.Unmatched)
	assert.Empty(t, out.Unclaimed)
}

func TestMatcher_EqualScoresPreferCloserDate(t *testing.T) {
	// Arrange
	cfg := StatementVsLedger()
	cfg.WindowDays = 5
	cfg.MinScore = 100
	cfg.Weights = Weights{AmountExact: 100, ReferenceOverlap: 40}
	m := newMatcher(t, cfg)

	source := withRef(makeTransaction("s1", 10, txn.Debit, "75.00", "chq 777"), "777")
	far := withRef(makeTransaction("a-far", 13, txn.Debit, "75.00", "cheque 777"), "777")
	near := withRef(makeTransaction("b-near", 11, txn.Debit, "75.00", "cheque 777"), "777")

	// Act
	out, err := m.Match([]txn.Transaction{source}, []txn.Transaction{far, near})

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	assert.InDelta(t, 140.0, out.Pairs[0].Score, 1e-9)
	assert.Equal(t, "b-near", out.Pairs[0].Target.ID)
	require.Len(t, out.Unclaimed, 1)
	assert.Equal(t, "a-far", out.Unclaimed[0].ID)
}

func TestMatcher_WithinOneCent(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	out, err := m.Match(
		[]txn.Transaction{makeTransaction("s1", 10, txn.Debit, "100.00", "store")},
		[]txn.Transaction{makeTransaction("t1", 10, txn.Debit, "100.01", "store")},
	)

	// Assert - Should match (within 1 cent)
	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	assert.True(t, out.Pairs[0].AmountDiff.Equal(decimal.RequireFromString("0.01")))
}

func TestMatcher_MoreThanOneCent_NoMatch(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	out, err := m.Match(
		[]txn.Transaction{makeTransaction("s1", 10, txn.Debit, "100.00", "store")},
		[]txn.Transaction{makeTransaction("t1", 10, txn.Debit, "100.02", "store")},
	)

	// Assert - Should NOT match (more than 1 cent, no shared reference)
	require.NoError(t, err)
	assert.Empty(t, out.Pairs)
	require.Len(t, out.Unmatched, 1)
	assert.Nil(t, out.Unmatched[0].Best)
	require.Len(t, out.Unclaimed, 1)
}

func TestMatcher_BeyondWindow_NoMatch(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	out, err := m.Match(
		[]txn.Transaction{makeTransaction("s1", 10, txn.Debit, "100.00", "store")},
		[]txn.Transaction{makeTransaction("t1", 14, txn.Debit, "100.00", "store")},
	)

	require.NoError(t, err)
	assert.Empty(t, out.Pairs)
	require.Len(t, out.Unmatched, 1)
}

func TestMatcher_DirectionMustAgree(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	out, err := m.Match(
		[]txn.Transaction{makeTransaction("s1", 10, txn.Debit, "100.00", "store")},
		[]txn.Transaction{makeTransaction("t1", 10, txn.Credit, "100.00", "store")},
	)

	require.NoError(t, err)
	assert.Empty(t, out.Pairs)
}

func TestMatcher_KeepsBestSubThresholdCandidate(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	source := withRef(makeTransaction("s1", 1, txn.Debit, "150.00", "chq 1042"), "1042")
	target := withRef(makeTransaction("t1", 4, txn.Debit, "175.00", "cheque 1042"), "1042")

	out, err := m.Match([]txn.Transaction{source}, []txn.Transaction{target})

	require.NoError(t, err)
	assert.Empty(t, out.Pairs)
	require.Len(t, out.Unmatched, 1)
	best := out.Unmatched[0].Best
	require.NotNil(t, best)
	assert.Equal(t, "t1", best.Target.ID)
	assert.InDelta(t, 54.0, best.Score, 1e-9)
	assert.False(t, best.AmountMatch)
}

func TestMatcher_BusinessKeyOverridesAmount(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	source := makeTransaction("s1", 1, txn.Credit, "420.00", "deposit reservation 88231")
	source.BusinessKey = "88231"
	target := makeTransaction("t1", 2, txn.Credit, "400.00", "res 88231 smith")
	target.BusinessKey = "88231"

	out, err := m.Match([]txn.Transaction{source}, []txn.Transaction{target})

	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	pair := out.Pairs[0]
	assert.False(t, pair.AmountMatch)
	assert.True(t, pair.AmountDiff.Equal(decimal.NewFromInt(20)))
	assert.InDelta(t, 498.0, pair.Score, 1e-9)
	assert.Contains(t, criteria(pair.Candidate), CriterionBusinessKey)
}

func TestMatcher_LargestSourceClaimsFirst(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	target := withRef(makeTransaction("t1", 1, txn.Debit, "100.00", "invoice 5001"), "5001")
	large := makeTransaction("x", 1, txn.Debit, "100.00", "acme")
	small := withRef(makeTransaction("a-y", 1, txn.Debit, "90.00", "ref 5001"), "5001")

	// Act
	out, err := m.Match([]txn.Transaction{small, large}, []txn.Transaction{target})

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, "x", out.Pairs[0].Source.ID)
	assert.Empty(t, out.Contenders)
	require.Len(t, out.Unmatched, 1)
	assert.Equal(t, "a-y", out.Unmatched[0].Source.ID)
	assert.Equal(t, "x", out.Unmatched[0].ClaimedBy)
	require.NotNil(t, out.Unmatched[0].Best)
	assert.Equal(t, "t1", out.Unmatched[0].Best.Target.ID)
}

func TestMatcher_ExactAmountBeatsReferenceOnly(t *testing.T) {
	// Arrange
	m := newMatcher(t, StatementVsLedger())
	deposit := makeTransaction("s-400", 4, txn.Credit, "400.00", "deposit reservation 12345")
	deposit.BusinessKey = "12345"
	balance := makeTransaction("s-100", 4, txn.Credit, "100.00", "deposit reservation 12345")
	balance.BusinessKey = "12345"
	booked := makeTransaction("t-100", 4, txn.Credit, "100.00", "res 12345 balance")
	booked.BusinessKey = "12345"

	// Act
	out, err := m.Match([]txn.Transaction{deposit, balance}, []txn.Transaction{booked})

	// Assert
	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, "s-100", out.Pairs[0].Source.ID)
	assert.Equal(t, "t-100", out.Pairs[0].Target.ID)
	assert.True(t, out.Pairs[0].AmountMatch)
	assert.False(t, out.Pairs[0].Contested)
	assert.Empty(t, out.Contenders)
	require.Len(t, out.Unmatched, 1)
	assert.Equal(t, "s-400", out.Unmatched[0].Source.ID)
	assert.Equal(t, "s-100", out.Unmatched[0].ClaimedBy)
	assert.Empty(t, out.Unclaimed)
}

func TestMatcher_ReferenceOnlyTakesWhatIsLeft(t *testing.T) {
	m := newMatcher(t, StatementVsLedger())
	deposit := makeTransaction("s-400", 4, txn.Credit, "400.00", "deposit reservation 12345")
	deposit.BusinessKey = "12345"
	booked := makeTransaction("t-420", 5, txn.Credit, "420.00", "res 12345")
	booked.BusinessKey = "12345"
	other := makeTransaction("t-100", 4, txn.Credit, "100.00", "walk in")

	out, err := m.Match([]txn.Transaction{deposit}, []txn.Transaction{other, booked})

	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	assert.Equal(t, "t-420", out.Pairs[0].Target.ID)
	assert.False(t, out.Pairs[0].AmountMatch)
	require.Len(t, out.Unclaimed, 1)
	assert.Equal(t, "t-100", out.Unclaimed[0].ID)
}

func TestMatcher_ContestedSettlesForNextCandidate(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	sources := []txn.Transaction{
		makeTransaction("b", 1, txn.Debit, "150.00", "supplier"),
		makeTransaction("a", 1, txn.Debit, "150.00", "supplier"),
	}
	targets := []txn.Transaction{
		makeTransaction("t2", 2, txn.Debit, "150.00", "supplier"),
		makeTransaction("t1", 1, txn.Debit, "150.00", "supplier"),
	}

	out, err := m.Match(sources, targets)

	require.NoError(t, err)
	require.Len(t, out.Pairs, 2)
	assert.Equal(t, "a", out.Pairs[0].Source.ID)
	assert.Equal(t, "t1", out.Pairs[0].Target.ID)
	assert.False(t, out.Pairs[0].Contested)
	assert.Equal(t, "b", out.Pairs[1].Source.ID)
	assert.Equal(t, "t2", out.Pairs[1].Target.ID)
	assert.True(t, out.Pairs[1].Contested)
}

func TestMatcher_OneToOne(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	var sources, targets []txn.Transaction
	for i := 0; i < 6; i++ {
		sources = append(sources, makeTransaction(fmt.Sprintf("s%d", i), 1+i%3, txn.Debit, "50.00", "fee"))
	}
	for i := 0; i < 4; i++ {
		targets = append(targets, makeTransaction(fmt.Sprintf("t%d", i), 1+i%2, txn.Debit, "50.00", "fee"))
	}

	out, err := m.Match(sources, targets)

	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, p := range out.Pairs {
		assert.False(t, seen[p.Target.ID], "target %s matched twice", p.Target.ID)
		seen[p.Target.ID] = true
	}
	assert.Len(t, out.Pairs, 4)
	assert.Len(t, out.Contenders, 2)
	assert.Empty(t, out.Unclaimed)
}

func TestMatcher_TransferPreset(t *testing.T) {
	m := newMatcher(t, Transfers())
	debit := withSource(makeTransaction("d1", 1, txn.Debit, "500.00", "transfer to savings"), "chequing")
	credit := withSource(makeTransaction("c1", 2, txn.Credit, "500.00", "transfer from chequing"), "savings")
	sameAccount := withSource(makeTransaction("c2", 1, txn.Credit, "500.00", "refund"), "chequing")

	out, err := m.Match([]txn.Transaction{debit}, []txn.Transaction{credit, sameAccount})

	require.NoError(t, err)
	require.Len(t, out.Pairs, 1)
	pair := out.Pairs[0]
	assert.Equal(t, "c1", pair.Target.ID)
	assert.InDelta(t, 126.0, pair.Score, 1e-9)
	assert.Contains(t, criteria(pair.Candidate), CriterionTransfer)
	assert.Contains(t, criteria(pair.Candidate), CriterionRound)
	require.Len(t, out.Unclaimed, 1)
	assert.Equal(t, "c2", out.Unclaimed[0].ID)
}

type firstWordTagger struct{}

func (firstWordTagger) Tag(t txn.Transaction) (string, bool) {
	fields := strings.Fields(t.Description)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func TestMatcher_CategoryAgreement(t *testing.T) {
	m := newMatcher(t, DefaultConfig(), WithTagger(firstWordTagger{}))

	c := m.Score(
		makeTransaction("s1", 1, txn.Debit, "20.00", "hardware store"),
		makeTransaction("t1", 1, txn.Debit, "20.00", "hardware depot"),
	)

	assert.Contains(t, criteria(c), CriterionCategory)
	assert.InDelta(t, 103.0, c.Score, 1e-9)
}

func TestMatcher_DescriptionOverlapNeedsTwoWords(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	one := m.Score(
		makeTransaction("s1", 1, txn.Debit, "20.00", "acme hardware"),
		makeTransaction("t1", 1, txn.Debit, "20.00", "acme plumbing"),
	)
	two := m.Score(
		makeTransaction("s1", 1, txn.Debit, "20.00", "acme hardware store"),
		makeTransaction("t1", 1, txn.Debit, "20.00", "store acme hardware"),
	)

	assert.NotContains(t, criteria(one), CriterionDescription)
	assert.Contains(t, criteria(two), CriterionDescription)
	assert.InDelta(t, 5.0, two.Score-one.Score, 1e-9)
}

func TestMatcher_AmountMatchIsSymmetric(t *testing.T) {
	m := newMatcher(t, DefaultConfig())
	amounts := []string{"10.00", "10.01", "10.02", "9.99", "10.005"}
	for _, a := range amounts {
		for _, b := range amounts {
			x := makeTransaction("x", 1, txn.Debit, a, "")
			y := makeTransaction("y", 1, txn.Debit, b, "")
			assert.Equal(t, m.Score(x, y).AmountMatch, m.Score(y, x).AmountMatch, "%s vs %s", a, b)
		}
	}
}

func randomBatch(rng *rand.Rand, prefix string, n int) []txn.Transaction {
	amounts := []string{"10.00", "25.00", "25.01", "150.00", "480.00", "1200.00"}
	words := []string{"acme", "supplier", "hardware", "payroll", "rent", "store"}
	var out []txn.Transaction
	for i := 0; i < n; i++ {
		dir := txn.Debit
		if rng.Intn(3) == 0 {
			dir = txn.Credit
		}
		r := makeTransaction(fmt.Sprintf("%s%03d", prefix, i), 1+rng.Intn(20), dir,
			amounts[rng.Intn(len(amounts))],
			words[rng.Intn(len(words))]+" "+words[rng.Intn(len(words))])
		if rng.Intn(5) == 0 {
			r.ExtractedRef = fmt.Sprintf("%d", 1000+rng.Intn(8))
			r.Description += " " + r.ExtractedRef
		}
		out = append(out, r)
	}
	return out
}

func TestMatcher_DeterministicUnderShuffle(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sources := randomBatch(rng, "s", 120)
	targets := randomBatch(rng, "t", 100)
	m := newMatcher(t, DefaultConfig())

	want, err := m.Match(sources, targets)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s := append([]txn.Transaction(nil), sources...)
		tg := append([]txn.Transaction(nil), targets...)
		rng.Shuffle(len(s), func(a, b int) { s[a], s[b] = s[b], s[a] })
		rng.Shuffle(len(tg), func(a, b int) { tg[a], tg[b] = tg[b], tg[a] })

		got, err := m.Match(s, tg)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(want, got, decimalEqual), "shuffle %d", i)
	}
}

func TestMatcher_IndexIsTransparent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	sources := randomBatch(rng, "s", 150)
	targets := randomBatch(rng, "t", 150)

	indexed := newMatcher(t, DefaultConfig())
	cfg := DefaultConfig()
	cfg.DisableIndex = true
	linear := newMatcher(t, cfg)

	want, err := indexed.Match(sources, targets)
	require.NoError(t, err)
	got, err := linear.Match(sources, targets)
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(want, got, decimalEqual))
	assert.NotEmpty(t, want.Pairs)
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative window":  func(c *Config) { c.WindowDays = -1 },
		"negative epsilon": func(c *Config) { c.Epsilon = decimal.RequireFromString("-0.01") },
		"missing weight":   func(c *Config) { c.Weights.AmountExact = 0 },
		"negative weight":  func(c *Config) { c.Weights.ReferenceOverlap = -5 },
		"direction rule":   func(c *Config) { c.Direction = "sideways" },
		"shared words":     func(c *Config) { c.MinSharedWords = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewMatcher(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	for _, name := range []string{"statement", "payroll", "transfers"} {
		cfg, ok := Preset(name)
		require.True(t, ok)
		assert.NoError(t, cfg.Validate(), name)
	}
	_, ok := Preset("nope")
	assert.False(t, ok)
}

func TestMatcher_MalformedRecords(t *testing.T) {
	m := newMatcher(t, DefaultConfig())

	noSegment := makeTransaction("s1", 1, txn.Debit, "1.00", "x")
	noSegment.SegmentID = ""
	_, err := m.Match([]txn.Transaction{noSegment}, nil)
	assert.ErrorIs(t, err, txn.ErrMalformedRecord)

	dup := makeTransaction("t1", 1, txn.Debit, "1.00", "x")
	_, err = m.Match(nil, []txn.Transaction{dup, dup})
	assert.ErrorIs(t, err, txn.ErrMalformedRecord)
}

func TestMatcher_RejectsIDOnBothSides(t *testing.T) {
	// Arrange
	m := newMatcher(t, DefaultConfig())
	statement := withSource(makeTransaction("bank:1:2", 1, txn.Debit, "150.00", "chq 1042"), "bank")
	ledger := withSource(makeTransaction("bank:1:2", 1, txn.Debit, "150.00", "chq 1042"), "bank")

	// Act
	out, err := m.Match([]txn.Transaction{statement}, []txn.Transaction{ledger})

	// Assert
	require.ErrorIs(t, err, txn.ErrMalformedRecord)
	assert.Contains(t, err.Error(), "bank:1:2")
	assert.Nil(t, out)
}
