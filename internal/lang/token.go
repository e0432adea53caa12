package lang

import "strings"

type TokenType int

const (
	TokenInvalid TokenType = iota
	TokenEOF

	TokenIdentifier
	TokenString
	TokenNumber

	// keywords
	TokenSelect
	TokenFrom
	TokenWhere
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenLike
	TokenBetween
	TokenIs
	TokenNull
	TokenTrue
	TokenFalse
	TokenJoin
	TokenInner
	TokenLeft
	TokenRight
	TokenOuter
	TokenOn
	TokenAs
	TokenOrder
	TokenBy
	TokenGroup
	TokenHaving
	TokenLimit
	TokenOffset
	TokenAsc
	TokenDesc
	TokenCount
	TokenSum
	TokenAvg
	TokenMin
	TokenMax
	TokenTrace
	TokenThrough
	TokenDescribe
	TokenShow
	TokenTables
	TokenPlugins
	TokenSources
	TokenCache
	TokenClear
	TokenSet
	TokenTtl

	// punctuation / operators
	TokenComma
	TokenDot
	TokenLeftParen
	TokenRightParen
	TokenAsterisk
	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
)

// keywords maps the upper-cased spelling of every reserved word to its
// token type. Lexing an identifier retags it if the upper-cased form is
// found here; the token's Text keeps the source's original case for
// identifiers but the upper-cased spelling for keywords (spec §4.1).
var keywords = map[string]TokenType{
	"SELECT":   TokenSelect,
	"FROM":     TokenFrom,
	"WHERE":    TokenWhere,
	"AND":      TokenAnd,
	"OR":       TokenOr,
	"NOT":      TokenNot,
	"IN":       TokenIn,
	"LIKE":     TokenLike,
	"BETWEEN":  TokenBetween,
	"IS":       TokenIs,
	"NULL":     TokenNull,
	"TRUE":     TokenTrue,
	"FALSE":    TokenFalse,
	"JOIN":     TokenJoin,
	"INNER":    TokenInner,
	"LEFT":     TokenLeft,
	"RIGHT":    TokenRight,
	"OUTER":    TokenOuter,
	"ON":       TokenOn,
	"AS":       TokenAs,
	"ORDER":    TokenOrder,
	"BY":       TokenBy,
	"GROUP":    TokenGroup,
	"HAVING":   TokenHaving,
	"LIMIT":    TokenLimit,
	"OFFSET":   TokenOffset,
	"ASC":      TokenAsc,
	"DESC":     TokenDesc,
	"COUNT":    TokenCount,
	"SUM":      TokenSum,
	"AVG":      TokenAvg,
	"MIN":      TokenMin,
	"MAX":      TokenMax,
	"TRACE":    TokenTrace,
	"THROUGH":  TokenThrough,
	"DESCRIBE": TokenDescribe,
	"SHOW":     TokenShow,
	"TABLES":   TokenTables,
	"PLUGINS":  TokenPlugins,
	"SOURCES":  TokenSources,
	"CACHE":    TokenCache,
	"CLEAR":    TokenClear,
	"SET":      TokenSet,
	"TTL":      TokenTtl,
}

// aggregateKeywords is the subset of keywords also legal as an alias or a
// bare field name (spec §4.2: "Aggregate keywords ... are also accepted as
// alias names and as field names inside predicates").
var aggregateKeywords = map[TokenType]bool{
	TokenCount: true,
	TokenSum:   true,
	TokenAvg:   true,
	TokenMin:   true,
	TokenMax:   true,
}

func IsAggregateKeyword(t TokenType) bool { return aggregateKeywords[t] }

func lookupKeyword(text string) (TokenType, bool) {
	t, ok := keywords[strings.ToUpper(text)]
	return t, ok
}

type Token struct {
	Type   TokenType
	Text   string
	Offset int
	Line   int
	Column int
}
