package bankfeed

import (
	"fmt"
	"strings"
	"time"

	"NexoCorpERP/internal/logger"

	"github.com/shopspring/decimal"
)

// Column vocabularies for header matching. Matching is case-insensitive
// substring search, so "data do lançamento" hits the "data" token. The
// lists cover the layouts of the major Brazilian banks (BB, Bradesco,
// Itaú, Santander, Caixa, Nubank) plus generic English exports.
var (
	dateColumnTokens = []string{
		"data", "date", "dt movto", "dt mov", "dt", "data_operacao",
	}
	descColumnTokens = []string{
		"descrição", "descricao", "desc", "histórico", "historico",
		"detalhes", "detalhe", "lançamento", "lancamento",
		"observação", "observacao", "referência", "referencia",
		"transação", "transacao", "operação", "operacao", "complemento",
	}
	valueColumnTokens = []string{
		"valor", "value", "vlr", "montante", "total",
	}
	debitColumnTokens = []string{
		"débito", "debito", "deb", "saída", "saida", "saidas",
		"pagamento", "despesa", "retirada", "saque",
	}
	creditColumnTokens = []string{
		"crédito", "credito", "cred", "entrada", "entradas",
		"recebimento", "receita", "depósito", "deposito",
	}
	typeColumnTokens = []string{
		"tipo", "type", "natureza", "sinal", "d/c", "dc",
		"entrada/saída", "entrada/saida", "débito/crédito", "debito/credito",
	}
	balanceColumnTokens = []string{
		"saldo", "saldo atual", "saldo final", "balance",
	}
	docColumnTokens = []string{
		"documento", "doc", "num doc", "numero documento", "número documento",
		"comprovante", "identificação", "identificacao",
	}
	creditValueTokens = []string{
		"credit", "crédito", "credito", "cred", "entrada", "recebimento",
		"receita", "depósito", "deposito", "receipt", "inflow",
	}
)

type statementLayout struct {
	date    []int
	desc    []int
	value   []int
	debit   []int
	credit  []int
	typ     []int
	balance []int
	doc     []int
}

// ParseCSVStatement turns raw CSV statement text into canonical transaction
// records. Separator and column layout are auto-detected from the header;
// rows that fail to parse are skipped, never fatal.
func ParseCSVStatement(content string) ([]CanonicalTransaction, error) {
	lines := splitStatementLines(content)
	if len(lines) < 2 {
		return nil, &FormatError{Reason: "statement needs a header line and at least one data row"}
	}

	headerLine := strings.TrimPrefix(strings.TrimSpace(lines[0]), "\uFEFF")
	sep := detectSeparator(headerLine)

	headers := parseCSVLine(headerLine, sep)
	for i := range headers {
		headers[i] = strings.ToLower(strings.TrimSpace(headers[i]))
	}

	rows := make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, parseCSVLine(line, sep))
	}

	return parseStatementRows(headers, rows)
}

// parseStatementRows is the shared tail of the CSV and Excel import paths:
// headers are already lowercased, rows already split into cells.
func parseStatementRows(headers []string, rows [][]string) ([]CanonicalTransaction, error) {
	layout := statementLayout{
		date:    findColumnIndices(headers, dateColumnTokens),
		desc:    findColumnIndices(headers, descColumnTokens),
		value:   findColumnIndices(headers, valueColumnTokens),
		debit:   findColumnIndices(headers, debitColumnTokens),
		credit:  findColumnIndices(headers, creditColumnTokens),
		typ:     findColumnIndices(headers, typeColumnTokens),
		balance: findColumnIndices(headers, balanceColumnTokens),
		doc:     findColumnIndices(headers, docColumnTokens),
	}

	hasValue := len(layout.value) > 0 || (len(layout.debit) > 0 && len(layout.credit) > 0)
	if len(layout.date) == 0 || len(layout.desc) == 0 || !hasValue {
		return nil, &FormatError{
			Reason: "expected Data, Descrição/Histórico and Valor (or Débito/Crédito) columns; found: " +
				strings.Join(headers, ", "),
		}
	}

	transactions := make([]CanonicalTransaction, 0, len(rows))
	for i, cells := range rows {
		rowNum := i + 1
		tx, ok := parseStatementRow(&layout, cells)
		if !ok {
			logger.Sync(fmt.Sprintf("statement import: skipping row %d (no usable date/value)", rowNum))
			continue
		}
		transactions = append(transactions, tx)
	}

	if len(transactions) == 0 {
		return nil, ErrEmptyStatement
	}
	return transactions, nil
}

func parseStatementRow(layout *statementLayout, cells []string) (CanonicalTransaction, bool) {
	first := strings.ToLower(strings.TrimSpace(firstNonEmpty(cells)))
	if first == "" || strings.HasPrefix(first, "total") || strings.HasPrefix(first, "saldo") {
		return CanonicalTransaction{}, false
	}

	dateStr := cellValue(cells, layout.date)
	if dateStr == "" {
		return CanonicalTransaction{}, false
	}
	date, ok := parseStatementDate(dateStr)
	if !ok {
		return CanonicalTransaction{}, false
	}

	desc := cellValue(cells, layout.desc)
	if desc == "" {
		desc = DefaultDescription
	}

	var raw decimal.Decimal
	var direction Direction
	haveValue := false

	// Dedicated debit/credit columns are the most reliable source and
	// take precedence over the generic value column.
	if s := cellValue(cells, layout.debit); s != "" {
		if v, ok := parseStatementValue(s); ok && !v.IsZero() {
			raw, direction, haveValue = v, DirectionPayable, true
		}
	}
	if !haveValue {
		if s := cellValue(cells, layout.credit); s != "" {
			if v, ok := parseStatementValue(s); ok && !v.IsZero() {
				raw, direction, haveValue = v, DirectionReceivable, true
			}
		}
	}
	if !haveValue {
		s := cellValue(cells, layout.value)
		if s == "" {
			return CanonicalTransaction{}, false
		}
		v, ok := parseStatementValue(s)
		if !ok {
			return CanonicalTransaction{}, false
		}
		raw = v
		if typeStr := cellValue(cells, layout.typ); typeStr != "" {
			direction = directionFromTypeToken(typeStr)
		} else if v.IsNegative() {
			direction = DirectionPayable
		} else {
			direction = DirectionReceivable
		}
		haveValue = true
	}

	tx := CanonicalTransaction{
		Date:        date,
		Description: strings.TrimSpace(desc),
		Amount:      raw.Abs().Round(2).InexactFloat64(),
		Direction:   direction,
		Type:        legacyType(direction),
		Status:      StatusPosted,
	}

	if s := cellValue(cells, layout.balance); s != "" {
		if v, ok := parseStatementValue(s); ok {
			b := v.Round(2).InexactFloat64()
			tx.Balance = &b
		}
	}
	if doc := cellValue(cells, layout.doc); doc != "" {
		tx.ExternalID = doc
	}

	return tx, true
}

// directionFromTypeToken maps a D/C-style cell against the credit
// vocabulary: credit/entry/receipt tokens mean receivable, anything else
// (D, débito, saída, ...) means payable.
func directionFromTypeToken(s string) Direction {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == "c" {
		return DirectionReceivable
	}
	for _, token := range creditValueTokens {
		if strings.Contains(normalized, token) {
			return DirectionReceivable
		}
	}
	return DirectionPayable
}

func splitStatementLines(content string) []string {
	raw := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// detectSeparator prefers tab when the header is tab-delimited, then
// semicolon (the common Brazilian bank export), falling back to comma.
func detectSeparator(header string) rune {
	tabs := strings.Count(header, "\t")
	if tabs > strings.Count(header, ";") && tabs > strings.Count(header, ",") {
		return '\t'
	}
	if strings.Contains(header, ";") {
		return ';'
	}
	return ','
}

// parseCSVLine splits one line on sep, honoring double-quoted cells: a
// separator inside quotes is literal and a doubled quote is an escaped
// quote character.
func parseCSVLine(line string, sep rune) []string {
	cells := make([]string, 0, 8)
	var cell strings.Builder
	inQuotes := false
	runes := []rune(line)

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				cell.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == sep && !inQuotes:
			cells = append(cells, cell.String())
			cell.Reset()
		default:
			cell.WriteRune(ch)
		}
	}
	cells = append(cells, cell.String())
	return cells
}

func findColumnIndices(headers []string, tokens []string) []int {
	indices := make([]int, 0, 2)
	for _, token := range tokens {
		for i, h := range headers {
			if strings.Contains(h, token) && !containsInt(indices, i) {
				indices = append(indices, i)
			}
		}
	}
	return indices
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// cellValue returns the first non-empty cell among candidate columns.
func cellValue(cells []string, indices []int) string {
	for _, idx := range indices {
		if idx >= 0 && idx < len(cells) {
			if v := strings.TrimSpace(cells[idx]); v != "" {
				return v
			}
		}
	}
	return ""
}

func firstNonEmpty(cells []string) string {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// parseStatementDate accepts ISO (YYYY-MM-DD), Brazilian (DD/MM/YYYY and
// DD/MM, current year assumed), compact DDMMYYYY and YYYYMMDD, and the
// DD/MM/YYYY HH:MM:SS variant some banks export. Returns the ISO form.
func parseStatementDate(s string) (string, bool) {
	cleaned := strings.TrimSpace(s)

	layouts := []struct {
		match  func(string) bool
		layout string
		trim   int
	}{
		{func(v string) bool { return len(v) == 10 && v[4] == '-' && v[7] == '-' }, "2006-01-02", 0},
		{func(v string) bool { return len(v) == 10 && v[2] == '/' && v[5] == '/' }, "02/01/2006", 0},
		{func(v string) bool { return len(v) == 8 && isDigits(v) && v[:2] <= "31" }, "02012006", 0},
		{func(v string) bool { return len(v) == 8 && isDigits(v) }, "20060102", 0},
		{func(v string) bool { return len(v) > 10 && v[2] == '/' && v[5] == '/' }, "02/01/2006", 10},
	}

	for _, l := range layouts {
		if !l.match(cleaned) {
			continue
		}
		candidate := cleaned
		if l.trim > 0 {
			candidate = cleaned[:l.trim]
		}
		if t, err := time.Parse(l.layout, candidate); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	// DD/MM without a year assumes the current year.
	if len(cleaned) == 5 && cleaned[2] == '/' {
		candidate := fmt.Sprintf("%s/%d", cleaned, time.Now().Year())
		if t, err := time.Parse("02/01/2006", candidate); err == nil {
			return t.Format("2006-01-02"), true
		}
	}

	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// parseStatementValue normalizes Brazilian and international number
// formatting. When both '.' and ',' appear, '.' is the thousands separator
// and ',' the decimal mark; a lone ',' is decimal only when followed by
// exactly two digits, otherwise it is stripped as a thousands separator.
func parseStatementValue(s string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '+' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Zero, false
	}

	// Keep only the leading sign.
	sign := ""
	if cleaned[0] == '+' || cleaned[0] == '-' {
		if cleaned[0] == '-' {
			sign = "-"
		}
	}
	cleaned = strings.NewReplacer("+", "", "-", "").Replace(cleaned)
	cleaned = sign + cleaned

	hasDot := strings.Contains(cleaned, ".")
	hasComma := strings.Contains(cleaned, ",")

	switch {
	case hasDot && hasComma:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case hasComma:
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) == 2 {
			cleaned = parts[0] + "." + parts[1]
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}
