package bankfeed

import (
	"strings"
)

// ParseQIFStatement parses the Quicken Interchange Format. Each record is a
// run of single-letter coded lines terminated by "^": D date, T/U amount,
// P payee, M memo, N reference number.
func ParseQIFStatement(content string) ([]CanonicalTransaction, error) {
	if !strings.HasPrefix(strings.TrimSpace(content), "!Type:") &&
		!strings.Contains(content, "\n^") && !strings.HasPrefix(content, "^") {
		return nil, ErrUnsupportedFormat
	}

	transactions := make([]CanonicalTransaction, 0, 16)
	var cur qifRecord

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if line == "^" {
			if tx, ok := cur.transaction(); ok {
				transactions = append(transactions, tx)
			}
			cur = qifRecord{}
			continue
		}
		code, value := line[0], strings.TrimSpace(line[1:])
		switch code {
		case 'D':
			cur.date = value
		case 'T', 'U':
			if cur.amount == "" {
				cur.amount = value
			}
		case 'P':
			cur.payee = value
		case 'M':
			cur.memo = value
		case 'N':
			cur.number = value
		}
	}
	if tx, ok := cur.transaction(); ok {
		transactions = append(transactions, tx)
	}

	if len(transactions) == 0 {
		return nil, ErrEmptyStatement
	}
	return transactions, nil
}

type qifRecord struct {
	date   string
	amount string
	payee  string
	memo   string
	number string
}

func (r qifRecord) transaction() (CanonicalTransaction, bool) {
	if r.date == "" || r.amount == "" {
		return CanonicalTransaction{}, false
	}
	date, ok := parseStatementDate(strings.ReplaceAll(r.date, "'", "/"))
	if !ok {
		return CanonicalTransaction{}, false
	}
	value, ok := parseStatementValue(r.amount)
	if !ok {
		return CanonicalTransaction{}, false
	}

	direction := DirectionReceivable
	if value.IsNegative() {
		direction = DirectionPayable
	}

	desc := r.payee
	if desc == "" {
		desc = r.memo
	}
	if desc == "" {
		desc = DefaultDescription
	}

	return CanonicalTransaction{
		ExternalID:  r.number,
		Date:        date,
		Description: desc,
		Amount:      value.Abs().Round(2).InexactFloat64(),
		Direction:   direction,
		Type:        legacyType(direction),
		Status:      StatusPosted,
	}, true
}
