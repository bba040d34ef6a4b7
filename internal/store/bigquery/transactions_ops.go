package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

const (
	transactionsTable = "transactions"
	bankAccountsTable = "bank_accounts"
)

// QueryTransactionsWithClient reads one administration's transactions
// dated strictly after the given date, optionally narrowed by filters.
// Rows come back in a stable order so repeated scans aggregate
// identically.
//
// transaction_date is a DATE column, so the comparison is day-granular
// and exclusive: rows imported later on the day of the last analysis are
// not reported as new. They are not lost; the next full-window rebuild
// includes them and its diff writes the missing delta.
func QueryTransactionsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, administration string, since civil.Date, f engine.Filters) ([]engine.Transaction, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `
		SELECT
			administration,
			description,
			debet,
			credit,
			reference_number,
			amount,
			transaction_date
		FROM `+"`%s.%s.%s`"+`
		WHERE administration = @administration
		AND transaction_date > @since
	`, projectID, datasetID, transactionsTable)

	params := []bigquery.QueryParameter{
		{Name: "administration", Value: administration},
		{Name: "since", Value: since},
	}
	if f.ReferenceNumber != "" {
		b.WriteString(" AND STRPOS(IFNULL(reference_number, ''), @reference_number) > 0\n")
		params = append(params, bigquery.QueryParameter{Name: "reference_number", Value: f.ReferenceNumber})
	}
	if f.Debet != "" {
		b.WriteString(" AND debet = @debet\n")
		params = append(params, bigquery.QueryParameter{Name: "debet", Value: f.Debet})
	}
	if f.Credit != "" {
		b.WriteString(" AND credit = @credit\n")
		params = append(params, bigquery.QueryParameter{Name: "credit", Value: f.Credit})
	}
	b.WriteString(" ORDER BY transaction_date, description")

	q := client.Query(b.String())
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsWithClient: reading query: %w", err)
	}

	var txs []engine.Transaction
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsWithClient: iterating: %w", err)
		}
		txs = append(txs, row.toTransaction())
	}

	return txs, nil
}

// IsBankAccountWithClient reports whether an account code is registered as
// a bank account for the administration.
func IsBankAccountWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID, administration, accountCode string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT account_code
		FROM `+"`%s.%s.%s`"+`
		WHERE administration = @administration
		AND account_code = @account_code
		LIMIT 1
	`, projectID, datasetID, bankAccountsTable)

	q := client.Query(query)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "administration", Value: administration},
		{Name: "account_code", Value: accountCode},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("IsBankAccountWithClient: reading query: %w", err)
	}

	var row BankAccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsBankAccountWithClient: iterating: %w", err)
	}
	return true, nil
}
