package nlp

import (
	"strconv"

	"github.com/pkg/errors"
)

var digitValues = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '俩': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

var unitValues = map[rune]int{
	'十': 10, '百': 100, '千': 1000, '万': 10000,
}

// ParseQuantity 解析数量表达，阿拉伯数字与中文数字都接受
// 支持"三""十二""两百五""1000"这类购物场景的量词前缀
func ParseQuantity(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty quantity")
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.Errorf("non-positive quantity %d", n)
		}
		return n, nil
	}

	total, section, current := 0, 0, 0
	seen := false
	for _, r := range s {
		if d, ok := digitValues[r]; ok {
			current = d
			seen = true
			continue
		}
		u, ok := unitValues[r]
		if !ok {
			return 0, errors.Errorf("not a quantity: %q", s)
		}
		seen = true
		if u == 10000 {
			total = (total + section + current) * u
			section, current = 0, 0
			continue
		}
		if current == 0 {
			current = 1 // "十二"的"十"前省略了一
		}
		section += current * u
		current = 0
	}
	if !seen {
		return 0, errors.Errorf("not a quantity: %q", s)
	}

	// "两百五"的尾数是上一单位的一半量级，购物口语按 50 理解
	if current > 0 && section > 0 {
		last := lastUnit(section)
		current *= last / 10
	}
	n := total + section + current
	if n <= 0 {
		return 0, errors.Errorf("non-positive quantity in %q", s)
	}
	return n, nil
}

func lastUnit(section int) int {
	unit := 10
	for u := 10; u <= section; u *= 10 {
		unit = u
	}
	return unit
}
