package linefile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eshaffer321/ledger-recon/internal/domain/normalizer"
	"github.com/eshaffer321/ledger-recon/internal/domain/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadText_PagesAndLines(t *testing.T) {
	// Arrange
	input := "Opening balance 1,000.00\n" +
		"2012-06-01 fee 50.00 950.00\r\n" +
		"\n" +
		"2012-06-02 deposit 20.00 970.00\f2012-06-03 atm 40.00 930.00\n" +
		"2012-06-04 pos 10.00 920.00\n"

	// Act
	lines, err := ReadText(strings.NewReader(input), Options{SourceID: "bank", YearHint: 2012})

	// Assert
	require.NoError(t, err)
	require.Len(t, lines, 5)
	assert.Equal(t, "2012-06-01 fee 50.00 950.00", lines[1].Text, "CR stripped")
	assert.Equal(t, 1, lines[2].Page)
	assert.Equal(t, 4, lines[2].Line, "blank line still counted")
	assert.Equal(t, 2, lines[3].Page)
	assert.Equal(t, 1, lines[3].Line)
	assert.Equal(t, 2, lines[4].Page)
	assert.Equal(t, 2, lines[4].Line)
	for _, l := range lines {
		assert.Equal(t, "bank", l.SourceID)
		assert.Equal(t, 2012, l.YearHint)
	}
}

func TestReadCSV_DebitCreditColumns(t *testing.T) {
	input := "Date,Description,Debit,Credit,Balance,Cheque Number\n" +
		"2012-06-01,Acme Supplies,150.00,,850.00,1042\n" +
		"2012-06-04,Reservation 88231,,500.00,\"1,350.00\",\n" +
		",,,,,\n"

	lines, err := ReadCSV(strings.NewReader(input), Options{SourceID: "ledger"})

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "2012-06-01  ref 1042  Acme Supplies  150.00  850.00", lines[0].Text)
	assert.Equal(t, txn.Debit, lines[0].Position)
	assert.Equal(t, 2, lines[0].Line)
	assert.Equal(t, "2012-06-04  Reservation 88231  500.00  1,350.00", lines[1].Text)
	assert.Equal(t, txn.Credit, lines[1].Position)

	// The flattened line is something the normalizer understands.
	n := normalizer.New(normalizer.DefaultConfig())
	rec, err := n.Normalize(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "1042", rec.ExtractedRef)
	assert.Equal(t, "150", rec.Magnitude.String())
}

func TestReadCSV_SignedAmount(t *testing.T) {
	input := "\ufeffPosted,Memo,Amount\n06/05/2012,coffee,-4.50\n"

	lines, err := ReadCSV(strings.NewReader(input), Options{SourceID: "card"})

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "06/05/2012  coffee  -4.50", lines[0].Text)
	assert.Empty(t, lines[0].Position)
}

func TestReadCSV_NoDateColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("Memo,Amount\ncoffee,4.50\n"), Options{})
	assert.ErrorIs(t, err, ErrNoDateColumn)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "chequing-2012.txt")
	csvPath := filepath.Join(dir, "ledger.CSV")
	require.NoError(t, os.WriteFile(textPath, []byte("2012-06-01 fee 5.00\n"), 0o644))
	require.NoError(t, os.WriteFile(csvPath, []byte("date,amount\n2012-06-01,5.00\n"), 0o644))

	lines, err := ReadFiles([]string{textPath, csvPath}, Options{})

	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "chequing-2012", lines[0].SourceID)
	assert.Equal(t, "ledger", lines[1].SourceID)
	assert.Equal(t, "2012-06-01  5.00", lines[1].Text)

	_, err = ReadFile(filepath.Join(dir, "missing.txt"), Options{})
	assert.Error(t, err)
}
