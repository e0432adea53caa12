package lang

import (
	"strconv"
	"strings"

	"github.com/cyw0ng95/infraql/internal/errs"
)

// Parser is a recursive-descent parser over a token stream with one-token
// lookahead, mirroring sqlvibe's QP.Parser shape (match/consume/peek/advance).
type Parser struct {
	tokens []Token
	pos    int
	input  string // source text, when known; used to recover a keyword's original case
}

func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse dispatches on the first token to one of the five statement parsers.
// A tokenize failure is re-wrapped with errs.ParseAt so its line/column
// survive alongside a message naming the outer "tokenize" stage, rather than
// bubbling the lexer's own *errs.Error straight through.
func Parse(sql string) (Statement, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		var line, column int
		var lexErr *errs.Error
		if errs.As(err, &lexErr) {
			if l, ok := lexErr.Details["line"].(int); ok {
				line = l
			}
			if c, ok := lexErr.Details["column"].(int); ok {
				column = c
			}
		}
		return nil, errs.ParseAt("tokenize failed", line, column, err)
	}
	p := NewParser(tokens)
	p.input = sql
	return p.Parse()
}

func (p *Parser) Parse() (Statement, error) {
	switch p.current().Type {
	case TokenSelect:
		return p.parseSelect()
	case TokenTrace:
		return p.parseTrace()
	case TokenDescribe:
		return p.parseDescribe()
	case TokenShow:
		return p.parseShowOrCache()
	case TokenCache:
		return p.parseCache()
	default:
		return nil, p.errorf("expected SELECT, TRACE, DESCRIBE, SHOW or CACHE")
	}
}

// --- token helpers -------------------------------------------------------

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[idx]
}

func (p *Parser) advance() Token {
	t := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return t
}

func (p *Parser) match(types ...TokenType) bool {
	for _, t := range types {
		if p.current().Type == t {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) check(t TokenType) bool { return p.current().Type == t }

func (p *Parser) consume(t TokenType, msg string) (Token, error) {
	if p.current().Type != t {
		return Token{}, p.errorf(msg)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(msg string) error {
	cur := p.current()
	return errs.Parse(msg, cur.Line, cur.Column)
}

// identLike accepts a plain identifier or an aggregate keyword used as a
// name (spec §4.2: aggregate keywords double as alias/field names). A keyword
// used as a name keeps the case it was written in, like any identifier.
func (p *Parser) identLike() (string, error) {
	cur := p.current()
	if cur.Type == TokenIdentifier || IsAggregateKeyword(cur.Type) {
		p.advance()
		text := cur.Text
		if end := cur.Offset + len(text); cur.Type != TokenIdentifier && end <= len(p.input) {
			if raw := p.input[cur.Offset:end]; strings.EqualFold(raw, text) {
				text = raw
			}
		}
		return text, nil
	}
	return "", p.errorf("expected identifier")
}

// --- SELECT ----------------------------------------------------------------

func (p *Parser) parseSelect() (*SelectStatement, error) {
	if _, err := p.consume(TokenSelect, "expected SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStatement{}

	for {
		col, err := p.parseProjection()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.match(TokenComma) {
			break
		}
	}

	if _, err := p.consume(TokenFrom, "expected FROM"); err != nil {
		return nil, err
	}
	from, err := p.identLike()
	if err != nil {
		return nil, err
	}
	stmt.From = from

	for p.isJoinStart() {
		j, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, j)
	}

	if p.check(TokenWhere) {
		p.advance()
		where, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.check(TokenGroup) {
		p.advance()
		if _, err := p.consume(TokenBy, "expected BY after GROUP"); err != nil {
			return nil, err
		}
		for {
			f, err := p.identLike()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, f)
			if !p.match(TokenComma) {
				break
			}
		}
	}

	if p.check(TokenHaving) {
		p.advance()
		having, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if p.check(TokenOrder) {
		p.advance()
		if _, err := p.consume(TokenBy, "expected BY after ORDER"); err != nil {
			return nil, err
		}
		for {
			f, err := p.qname()
			if err != nil {
				return nil, err
			}
			dir := OrderAsc
			if p.match(TokenAsc) {
				dir = OrderAsc
			} else if p.match(TokenDesc) {
				dir = OrderDesc
			}
			stmt.OrderBy = append(stmt.OrderBy, OrderTerm{Field: f, Direction: dir})
			if !p.match(TokenComma) {
				break
			}
		}
	}

	if p.check(TokenLimit) {
		p.advance()
		n, err := p.integerLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}

	if p.check(TokenOffset) {
		p.advance()
		n, err := p.integerLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	return stmt, nil
}

func (p *Parser) integerLiteral() (int, error) {
	tok, err := p.consume(TokenNumber, "expected a number")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(tok.Text)
	if convErr != nil {
		return 0, errs.Parse("expected an integer", tok.Line, tok.Column)
	}
	if n < 0 {
		return 0, errs.Parse("expected a non-negative integer", tok.Line, tok.Column)
	}
	return n, nil
}

// qname := ident ('.' ident)?
func (p *Parser) qname() (string, error) {
	first, err := p.identLike()
	if err != nil {
		return "", err
	}
	if p.match(TokenDot) {
		second, err := p.identLike()
		if err != nil {
			return "", err
		}
		return first + "." + second, nil
	}
	return first, nil
}

var aggregateTokenKind = map[TokenType]AggregateKind{
	TokenCount: AggCount,
	TokenSum:   AggSum,
	TokenAvg:   AggAvg,
	TokenMin:   AggMin,
	TokenMax:   AggMax,
}

// proj := '*' | (agg '(' ('*'|ident) ')' | qname) ('AS' aliasName)?
func (p *Parser) parseProjection() (Column, error) {
	if p.check(TokenAsterisk) {
		p.advance()
		return Column{Name: "*"}, nil
	}

	if kind, ok := aggregateTokenKind[p.current().Type]; ok && p.peekAt(1).Type == TokenLeftParen {
		p.advance() // aggregate keyword
		p.advance() // '('
		var arg string
		if p.check(TokenAsterisk) {
			p.advance()
			arg = "*"
		} else {
			var err error
			arg, err = p.qname()
			if err != nil {
				return Column{}, err
			}
		}
		if _, err := p.consume(TokenRightParen, "expected ')' after aggregate argument"); err != nil {
			return Column{}, err
		}
		col := Column{Name: arg, Aggregate: kind}
		if alias, err := p.parseOptionalAlias(); err != nil {
			return Column{}, err
		} else if alias != "" {
			col.Alias = alias
		}
		return col, nil
	}

	name, err := p.qname()
	if err != nil {
		return Column{}, err
	}
	col := Column{Name: name}
	if alias, err := p.parseOptionalAlias(); err != nil {
		return Column{}, err
	} else if alias != "" {
		col.Alias = alias
	}
	return col, nil
}

func (p *Parser) parseOptionalAlias() (string, error) {
	if p.match(TokenAs) {
		return p.identLike()
	}
	return "", nil
}

func (p *Parser) isJoinStart() bool {
	switch p.current().Type {
	case TokenJoin, TokenInner, TokenLeft, TokenRight:
		return true
	default:
		return false
	}
}

// joins := (jointype 'JOIN' ident 'ON' qname cmpop qname)+
// jointype := 'INNER' | 'LEFT' ['OUTER'] | 'RIGHT' ['OUTER'] | (implicit INNER)
func (p *Parser) parseJoin() (Join, error) {
	kind := JoinInner
	switch p.current().Type {
	case TokenInner:
		p.advance()
		kind = JoinInner
	case TokenLeft:
		p.advance()
		p.match(TokenOuter)
		kind = JoinLeft
	case TokenRight:
		p.advance()
		p.match(TokenOuter)
		kind = JoinRight
	}
	if _, err := p.consume(TokenJoin, "expected JOIN"); err != nil {
		return Join{}, err
	}
	table, err := p.identLike()
	if err != nil {
		return Join{}, err
	}
	if _, err := p.consume(TokenOn, "expected ON"); err != nil {
		return Join{}, err
	}
	left, err := p.qname()
	if err != nil {
		return Join{}, err
	}
	op, err := p.comparisonOp()
	if err != nil {
		return Join{}, err
	}
	right, err := p.qname()
	if err != nil {
		return Join{}, err
	}
	return Join{Kind: kind, Table: table, On: JoinCondition{LeftField: left, Op: op, RightField: right}}, nil
}

func (p *Parser) comparisonOp() (string, error) {
	tok := p.current()
	switch tok.Type {
	case TokenEq:
		p.advance()
		return "=", nil
	case TokenNe:
		p.advance()
		return "!=", nil
	case TokenLt:
		p.advance()
		return "<", nil
	case TokenLe:
		p.advance()
		return "<=", nil
	case TokenGt:
		p.advance()
		return ">", nil
	case TokenGe:
		p.advance()
		return ">=", nil
	default:
		return "", p.errorf("expected a comparison operator")
	}
}

// predicate := cond ((AND|OR) cond)*
//
// Design note (spec §9 open question): the source collapses the whole WHERE
// clause to a single combinator variable overwritten as AND/OR tokens are
// seen, so a predicate mixing both is under-constrained upstream. infraql
// preserves that "last combinator wins" behavior rather than rejecting mixed
// predicates, and records every condition seen regardless of which token
// joined it, matching the source's actual (if surprising) evaluation.
func (p *Parser) parsePredicate() (*Predicate, error) {
	pred := &Predicate{Combinator: CombAnd}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	pred.Conditions = append(pred.Conditions, cond)

	for {
		var comb Combinator
		if p.match(TokenAnd) {
			comb = CombAnd
		} else if p.match(TokenOr) {
			comb = CombOr
		} else {
			break
		}
		pred.Combinator = comb
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		pred.Conditions = append(pred.Conditions, cond)
	}
	return pred, nil
}

// cond := qname (cmpop literal | 'BETWEEN' literal 'AND' literal | 'IN' '(' literal (',' literal)* ')' | 'LIKE' literal)
func (p *Parser) parseCondition() (Condition, error) {
	field, err := p.qname()
	if err != nil {
		return Condition{}, err
	}

	switch {
	case p.check(TokenBetween):
		p.advance()
		lo, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		if _, err := p.consume(TokenAnd, "expected AND in BETWEEN"); err != nil {
			return Condition{}, err
		}
		hi, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		return Condition{Field: field, Op: "BETWEEN", Value: lo, SecondValue: hi}, nil

	case p.check(TokenIn):
		p.advance()
		if _, err := p.consume(TokenLeftParen, "expected '(' after IN"); err != nil {
			return Condition{}, err
		}
		var values []interface{}
		for {
			v, err := p.literal()
			if err != nil {
				return Condition{}, err
			}
			values = append(values, v)
			if !p.match(TokenComma) {
				break
			}
		}
		if _, err := p.consume(TokenRightParen, "expected ')' to close IN list"); err != nil {
			return Condition{}, err
		}
		return Condition{Field: field, Op: "IN", Values: values}, nil

	case p.check(TokenLike):
		p.advance()
		v, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		return Condition{Field: field, Op: "LIKE", Value: v}, nil

	default:
		op, err := p.comparisonOp()
		if err != nil {
			return Condition{}, err
		}
		v, err := p.literal()
		if err != nil {
			return Condition{}, err
		}
		return Condition{Field: field, Op: op, Value: v}, nil
	}
}

// literal parses a string, number, or boolean literal into a Go value.
// Numbers with a '.' are float64; otherwise int64 (spec §3).
func (p *Parser) literal() (interface{}, error) {
	tok := p.current()
	switch tok.Type {
	case TokenString:
		p.advance()
		return tok.Text, nil
	case TokenNumber:
		p.advance()
		return parseNumber(tok.Text)
	case TokenTrue:
		p.advance()
		return true, nil
	case TokenFalse:
		p.advance()
		return false, nil
	case TokenNull:
		p.advance()
		return nil, nil
	default:
		return nil, p.errorf("expected a literal value")
	}
}

func parseNumber(text string) (interface{}, error) {
	for _, ch := range text {
		if ch == '.' {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// --- TRACE -------------------------------------------------------------

// TRACE ident '=' literal ('THROUGH' ident (',' ident)*)?
func (p *Parser) parseTrace() (*TraceStatement, error) {
	p.advance() // TRACE
	ident, err := p.identLike()
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(TokenEq, "expected '=' after TRACE identifier"); err != nil {
		return nil, err
	}
	value, err := p.literal()
	if err != nil {
		return nil, err
	}
	stmt := &TraceStatement{Identifier: ident, Value: value}
	if p.match(TokenThrough) {
		for {
			src, err := p.identLike()
			if err != nil {
				return nil, err
			}
			stmt.Through = append(stmt.Through, src)
			if !p.match(TokenComma) {
				break
			}
		}
	}
	return stmt, nil
}

// --- DESCRIBE ------------------------------------------------------------

func (p *Parser) parseDescribe() (*DescribeStatement, error) {
	p.advance() // DESCRIBE
	target, err := p.qname()
	if err != nil {
		return nil, err
	}
	return &DescribeStatement{Target: target}, nil
}

// --- SHOW / CACHE --------------------------------------------------------

// parseShowOrCache resolves the SHOW/CACHE ambiguity noted in spec §9: SHOW
// CACHE routes to a CacheStatement{Action: SHOW}; SHOW TABLES/PLUGINS/SOURCES
// route to a ShowStatement. One token of lookahead settles it.
func (p *Parser) parseShowOrCache() (Statement, error) {
	p.advance() // SHOW
	switch p.current().Type {
	case TokenCache:
		p.advance()
		return &CacheStatement{Action: CacheShow}, nil
	case TokenTables:
		p.advance()
		return &ShowStatement{What: ShowTables}, nil
	case TokenPlugins:
		p.advance()
		return &ShowStatement{What: ShowPlugins}, nil
	case TokenSources:
		p.advance()
		return &ShowStatement{What: ShowSources}, nil
	default:
		return nil, p.errorf("expected TABLES, PLUGINS, SOURCES or CACHE after SHOW")
	}
}

// CACHE CLEAR [table]
// CACHE SET TTL [table] <millis>
func (p *Parser) parseCache() (*CacheStatement, error) {
	p.advance() // CACHE
	switch p.current().Type {
	case TokenClear:
		p.advance()
		stmt := &CacheStatement{Action: CacheClear}
		if p.check(TokenIdentifier) {
			table, err := p.identLike()
			if err != nil {
				return nil, err
			}
			stmt.Table = table
			stmt.HasTable = true
		}
		return stmt, nil
	case TokenSet:
		p.advance()
		if _, err := p.consume(TokenTtl, "expected TTL after SET"); err != nil {
			return nil, err
		}
		stmt := &CacheStatement{Action: CacheSetTTL}
		if p.check(TokenIdentifier) && p.peekAt(1).Type == TokenNumber {
			table, err := p.identLike()
			if err != nil {
				return nil, err
			}
			stmt.Table = table
			stmt.HasTable = true
		}
		n, err := p.integerLiteral()
		if err != nil {
			return nil, err
		}
		stmt.TTLMillis = int64(n)
		stmt.HasTTL = true
		return stmt, nil
	default:
		return nil, p.errorf("expected CLEAR or SET after CACHE")
	}
}
