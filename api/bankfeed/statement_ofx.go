package bankfeed

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OFX files come in both SGML (OFX 1.x, unclosed tags) and XML (OFX 2.x)
// flavors. Scanning STMTTRN blocks with regular expressions handles both
// without caring which one the bank produced.
var (
	ofxTxnBlockRe = regexp.MustCompile(`(?is)<STMTTRN>(.*?)</STMTTRN>`)
	ofxBalanceRe  = regexp.MustCompile(`(?is)<LEDGERBAL>.*?<BALAMT>([^<\r\n]+)`)
)

func ofxTagValue(block, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `>([^<\r\n]+)`)
	if m := re.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ParseOFXStatement extracts the statement transactions from OFX content.
// The trailing ledger balance, when present, is attached to the last
// transaction so importers can reconcile the running balance.
func ParseOFXStatement(content string) ([]CanonicalTransaction, error) {
	lowered := strings.ToLower(content)
	if !strings.Contains(lowered, "<ofx>") &&
		!strings.Contains(lowered, "<ofx ") &&
		!strings.Contains(lowered, "<ofx:") &&
		!strings.Contains(content, "OFXHEADER") {
		return nil, ErrUnsupportedFormat
	}

	blocks := ofxTxnBlockRe.FindAllStringSubmatch(content, -1)
	transactions := make([]CanonicalTransaction, 0, len(blocks))

	for _, m := range blocks {
		block := m[1]

		dateStr := ofxTagValue(block, "DTPOSTED")
		if len(dateStr) < 8 {
			continue
		}
		posted, err := time.Parse("20060102", dateStr[:8])
		if err != nil {
			continue
		}

		amountStr := ofxTagValue(block, "TRNAMT")
		if amountStr == "" {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(amountStr, ",", "."))
		if err != nil {
			continue
		}

		direction := DirectionReceivable
		if amount.IsNegative() {
			direction = DirectionPayable
		}

		desc := ofxTagValue(block, "MEMO")
		if desc == "" {
			desc = ofxTagValue(block, "NAME")
		}
		if desc == "" {
			desc = DefaultDescription
		}

		transactions = append(transactions, CanonicalTransaction{
			ExternalID:  ofxTagValue(block, "FITID"),
			Date:        posted.Format("2006-01-02"),
			Description: desc,
			Amount:      amount.Abs().Round(2).InexactFloat64(),
			Direction:   direction,
			Type:        legacyType(direction),
			Status:      StatusPosted,
		})
	}

	if len(transactions) == 0 {
		return nil, ErrEmptyStatement
	}

	if m := ofxBalanceRe.FindStringSubmatch(content); m != nil {
		if bal, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(m[1]), ",", ".")); err == nil {
			v := bal.Round(2).InexactFloat64()
			transactions[len(transactions)-1].Balance = &v
		}
	}

	return transactions, nil
}
