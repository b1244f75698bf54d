package utils

import "strings"

// GenerateSymbol 根据股票代码前缀补全交易所前缀
func GenerateSymbol(code string) (string, bool) {
	if len(code) < 2 {
		return code, false
	}

	prefix := code[:2]

	switch prefix {
	case "00", "30":
		return "sz" + code, true
	case "60", "68":
		return "sh" + code, true
	case "92", "87", "83", "43":
		return "bj" + code, true
	default:
		return code, false
	}
}

// NormalizeSymbol accepts 600000, sh600000, SH600000 or 600000.SH.
func NormalizeSymbol(input string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if code, market, found := strings.Cut(s, "."); found {
		s = market + code
	}
	if len(s) == 8 {
		switch s[:2] {
		case "sh", "sz", "bj":
			if isDigits(s[2:]) {
				return s, true
			}
		}
		return input, false
	}
	if len(s) == 6 && isDigits(s) {
		return GenerateSymbol(s)
	}
	return input, false
}

// SplitSymbol returns market prefix and bare code.
func SplitSymbol(symbol string) (market, code string) {
	if len(symbol) == 8 {
		return symbol[:2], symbol[2:]
	}
	return "", symbol
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
