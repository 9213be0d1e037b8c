package queryengine

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/sells-group/dealroom-cli/internal/faults"
	"github.com/sells-group/dealroom-cli/internal/model"
)

// evaluator recomputes spreadsheet formulas from a stored cell grid. It
// covers the subset that shows up in deal models: arithmetic with
// parentheses and unary minus, cell and cross-sheet references, and
// SUM/AVERAGE/MIN/MAX over rectangular ranges. Anything else is reported
// as unsupported rather than guessed at.
type evaluator struct {
	cells     map[string]model.CellFact // "Sheet!A1" → cell
	overrides map[string]float64        // "Sheet!A1" → replacement value
	memo      map[string]float64
	visiting  map[string]bool
}

func newEvaluator(cells []model.CellFact, overrides map[string]float64) *evaluator {
	e := &evaluator{
		cells:     make(map[string]model.CellFact, len(cells)),
		overrides: overrides,
		memo:      map[string]float64{},
		visiting:  map[string]bool{},
	}
	for _, c := range cells {
		e.cells[c.Sheet+"!"+c.Address] = c
	}
	return e
}

// valueOf resolves one cell: override first, then formula re-evaluation,
// then the stored numeric value.
func (e *evaluator) valueOf(ref string) (float64, error) {
	if v, ok := e.overrides[ref]; ok {
		return v, nil
	}
	if v, ok := e.memo[ref]; ok {
		return v, nil
	}
	cell, ok := e.cells[ref]
	if !ok {
		return 0, faults.Newf(faults.Query, "eval: unknown cell %s", ref)
	}
	if e.visiting[ref] {
		return 0, faults.Newf(faults.Query, "eval: circular reference through %s", ref)
	}
	if cell.DataType == model.CellTypeCircular {
		// Flagged at ingest: the cached value was an error sentinel, so
		// neither the formula nor the stored value is trustworthy.
		return 0, faults.Newf(faults.Query, "eval: cell %s holds a circular formula", ref)
	}

	if cell.Formula != "" {
		e.visiting[ref] = true
		v, err := e.eval(cell.Formula, cell.Sheet)
		delete(e.visiting, ref)
		if err != nil {
			return 0, err
		}
		e.memo[ref] = v
		return v, nil
	}
	if cell.NumericValue == nil {
		return 0, faults.Newf(faults.Query, "eval: cell %s has no numeric value", ref)
	}
	return *cell.NumericValue, nil
}

type token struct {
	kind string // "num", "op", "lparen", "rparen", "ref", "func", "comma"
	text string
	num  float64
}

func (e *evaluator) eval(formula, sheet string) (float64, error) {
	tokens, err := tokenize(formula)
	if err != nil {
		return 0, err
	}
	rpn, err := toRPN(tokens)
	if err != nil {
		return 0, err
	}
	return e.evalRPN(rpn, sheet)
}

func tokenize(formula string) ([]token, error) {
	s := strings.TrimPrefix(strings.TrimSpace(formula), "=")
	var out []token
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ':
			i++
		case ch == '(':
			out = append(out, token{kind: "lparen"})
			i++
		case ch == ')':
			out = append(out, token{kind: "rparen"})
			i++
		case ch == ',':
			out = append(out, token{kind: "comma"})
			i++
		case strings.ContainsRune("+-*/^", rune(ch)):
			out = append(out, token{kind: "op", text: string(ch)})
			i++
		case ch >= '0' && ch <= '9' || ch == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			n, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, faults.Wrap(faults.Query, err, "eval: bad number")
			}
			out = append(out, token{kind: "num", num: n})
			i = j
		case isRefStart(rune(ch)):
			j := i
			for j < len(s) && isRefChar(rune(s[j])) {
				j++
			}
			word := s[i:j]
			if j < len(s) && s[j] == '(' {
				out = append(out, token{kind: "func", text: strings.ToUpper(word)})
			} else {
				out = append(out, token{kind: "ref", text: word})
			}
			i = j
		default:
			return nil, faults.Newf(faults.Query, "eval: unsupported character %q in formula", ch)
		}
	}
	return out, nil
}

func isRefStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '\'' || r == '$'
}

func isRefChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("_!':.$", r)
}

var precedence = map[string]int{"u-": 4, "^": 3, "*": 2, "/": 2, "+": 1, "-": 1}

// toRPN is a standard shunting-yard pass. Function tokens and their
// argument lists ride the operator stack; commas flush pending operators
// down to the enclosing function's paren.
func toRPN(tokens []token) ([]token, error) {
	var out, stack []token
	var prev *token
	for idx := range tokens {
		t := tokens[idx]
		switch t.kind {
		case "num", "ref":
			out = append(out, t)
		case "func":
			stack = append(stack, t)
		case "comma":
			for len(stack) > 0 && stack[len(stack)-1].kind != "lparen" {
				out = append(out, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return nil, faults.New(faults.Query, "eval: comma outside function call")
			}
			out = append(out, t)
		case "op":
			op := t.text
			if op == "-" && (prev == nil || prev.kind == "op" || prev.kind == "lparen" || prev.kind == "comma") {
				op = "u-"
			}
			for len(stack) > 0 {
				top := stack[len(stack)-1]
				if top.kind != "op" || precedence[top.text] < precedence[op] {
					break
				}
				out = append(out, top)
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, token{kind: "op", text: op})
		case "lparen":
			// A function's opening paren drops a marker into the output so
			// evaluation knows where its arguments begin.
			if prev != nil && prev.kind == "func" {
				out = append(out, token{kind: "mark"})
			}
			stack = append(stack, t)
		case "rparen":
			for len(stack) > 0 && stack[len(stack)-1].kind != "lparen" {
				out = append(out, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			if len(stack) == 0 {
				return nil, faults.New(faults.Query, "eval: unbalanced parentheses")
			}
			stack = stack[:len(stack)-1] // the lparen
			if len(stack) > 0 && stack[len(stack)-1].kind == "func" {
				out = append(out, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
		}
		prev = &tokens[idx]
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.kind == "lparen" {
			return nil, faults.New(faults.Query, "eval: unbalanced parentheses")
		}
		out = append(out, top)
		stack = stack[:len(stack)-1]
	}
	return out, nil
}

func (e *evaluator) evalRPN(rpn []token, sheet string) (float64, error) {
	type operand struct {
		values []float64 // a plain number has one; a range carries many
		mark   bool      // argument-list boundary for a function call
	}
	var stack []operand
	pop := func() (operand, bool) {
		if len(stack) == 0 {
			return operand{}, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}

	for _, t := range rpn {
		switch t.kind {
		case "num":
			stack = append(stack, operand{values: []float64{t.num}})
		case "ref":
			vals, err := e.resolveRef(t.text, sheet)
			if err != nil {
				return 0, err
			}
			stack = append(stack, operand{values: vals})
		case "mark":
			stack = append(stack, operand{mark: true})
		case "comma":
			// Argument boundary; arguments stay on the stack for the
			// enclosing function.
		case "op":
			if t.text == "u-" {
				a, ok := pop()
				if !ok || len(a.values) != 1 {
					return 0, faults.New(faults.Query, "eval: malformed expression")
				}
				stack = append(stack, operand{values: []float64{-a.values[0]}})
				continue
			}
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB || len(a.values) != 1 || len(b.values) != 1 {
				return 0, faults.New(faults.Query, "eval: malformed expression")
			}
			v, err := applyOp(t.text, a.values[0], b.values[0])
			if err != nil {
				return 0, err
			}
			stack = append(stack, operand{values: []float64{v}})
		case "func":
			var args []float64
			for {
				a, ok := pop()
				if !ok {
					return 0, faults.Newf(faults.Query, "eval: missing arguments for %s", t.text)
				}
				if a.mark {
					break
				}
				args = append(a.values, args...)
			}
			v, err := applyFunc(t.text, args)
			if err != nil {
				return 0, err
			}
			stack = append(stack, operand{values: []float64{v}})
		}
	}
	if len(stack) != 1 || len(stack[0].values) != 1 {
		return 0, faults.New(faults.Query, "eval: malformed expression")
	}
	return stack[0].values[0], nil
}

func applyOp(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, faults.New(faults.Query, "eval: division by zero")
		}
		return a / b, nil
	case "^":
		return math.Pow(a, b), nil
	}
	return 0, faults.Newf(faults.Query, "eval: unknown operator %q", op)
}

func applyFunc(name string, args []float64) (float64, error) {
	if len(args) == 0 {
		return 0, faults.Newf(faults.Query, "eval: %s of empty range", name)
	}
	switch name {
	case "SUM":
		total := 0.0
		for _, v := range args {
			total += v
		}
		return total, nil
	case "AVERAGE", "AVG":
		total := 0.0
		for _, v := range args {
			total += v
		}
		return total / float64(len(args)), nil
	case "MIN":
		m := args[0]
		for _, v := range args[1:] {
			if v < m {
				m = v
			}
		}
		return m, nil
	case "MAX":
		m := args[0]
		for _, v := range args[1:] {
			if v > m {
				m = v
			}
		}
		return m, nil
	}
	return 0, faults.Newf(faults.Query, "eval: unsupported function %s", name)
}

// resolveRef turns "B2", "Model!B2", or a range "B2:B13" into values.
// Sheet-less references resolve against the formula's own sheet.
func (e *evaluator) resolveRef(ref, sheet string) ([]float64, error) {
	ref = strings.ReplaceAll(strings.Trim(ref, "'"), "$", "")
	if colon := strings.Index(ref, ":"); colon >= 0 {
		return e.resolveRange(ref[:colon], ref[colon+1:], sheet)
	}
	if !strings.Contains(ref, "!") {
		ref = sheet + "!" + ref
	}
	v, err := e.valueOf(ref)
	if err != nil {
		return nil, err
	}
	return []float64{v}, nil
}

func (e *evaluator) resolveRange(from, to, sheet string) ([]float64, error) {
	if i := strings.Index(from, "!"); i >= 0 {
		sheet = from[:i]
		from = from[i+1:]
	}
	to = to[strings.Index(to, "!")+1:]

	fromCol, fromRow, err := splitAddress(from)
	if err != nil {
		return nil, err
	}
	toCol, toRow, err := splitAddress(to)
	if err != nil {
		return nil, err
	}

	var vals []float64
	for c := fromCol; c <= toCol; c++ {
		for r := fromRow; r <= toRow; r++ {
			ref := sheet + "!" + columnName(c) + strconv.Itoa(r)
			if _, ok := e.cells[ref]; !ok {
				continue // empty cells contribute nothing to a range
			}
			v, err := e.valueOf(ref)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
	}
	return vals, nil
}

// splitAddress decomposes "B12" into a zero-based column and one-based row.
func splitAddress(addr string) (col, row int, err error) {
	i := 0
	for i < len(addr) && addr[i] >= 'A' && addr[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(addr) {
		return 0, 0, faults.Newf(faults.Query, "eval: bad cell address %q", addr)
	}
	for _, ch := range addr[:i] {
		col = col*26 + int(ch-'A') + 1
	}
	col--
	row, convErr := strconv.Atoi(addr[i:])
	if convErr != nil {
		return 0, 0, faults.Newf(faults.Query, "eval: bad cell address %q", addr)
	}
	return col, row, nil
}

func columnName(col int) string {
	name := ""
	for col >= 0 {
		name = string(rune('A'+col%26)) + name
		col = col/26 - 1
	}
	return name
}
