package numpy

import (
	"math"
	"strconv"
	"strings"
)

const (
	printPrecision = 8
	lineWidth      = 75
)

// format renders an array the way numpy's print does: aligned columns,
// floats with up to eight fractional digits and a trailing "." for whole
// values, scientific notation when magnitudes are extreme.
func format(a *ndarray) string {
	if a.shape == nil {
		return formatScalar(a)
	}
	words := formatElements(a)
	if a.ndim() == 1 {
		return formatRow(words, "[", "]")
	}

	var b strings.Builder
	b.WriteString("[")
	c := a.cols()
	for i := 0; i < a.rows(); i++ {
		if i > 0 {
			b.WriteString("\n ")
		}
		closing := "]"
		if i == a.rows()-1 {
			closing = "]]"
		}
		b.WriteString(formatRow(words[i*c:(i+1)*c], "[", closing))
	}
	if a.rows() == 0 {
		b.WriteString("]")
	}
	return b.String()
}

func formatScalar(a *ndarray) string {
	if a.isInt {
		return strconv.FormatInt(int64(a.data[0]), 10)
	}
	return strconv.FormatFloat(a.data[0], 'g', -1, 64)
}

// formatRow joins words with single spaces, wrapping at lineWidth with
// continuation lines indented past the opening bracket.
func formatRow(words []string, open, closing string) string {
	var b strings.Builder
	b.WriteString(open)
	lineLen := len(open)
	indent := strings.Repeat(" ", len(open))
	for i, w := range words {
		extra := 0
		if i == len(words)-1 {
			extra = len(closing)
		}
		if i > 0 {
			if lineLen+1+len(w)+extra > lineWidth {
				b.WriteString("\n")
				b.WriteString(indent)
				lineLen = len(indent)
			} else {
				b.WriteString(" ")
				lineLen++
			}
		}
		b.WriteString(w)
		lineLen += len(w)
	}
	b.WriteString(closing)
	return b.String()
}

// formatElements returns each element padded to a common width.
func formatElements(a *ndarray) []string {
	words := make([]string, len(a.data))
	if a.isInt {
		width := 0
		for i, v := range a.data {
			words[i] = strconv.FormatInt(int64(v), 10)
			width = max(width, len(words[i]))
		}
		for i := range words {
			words[i] = padLeft(words[i], width)
		}
		return words
	}

	if useScientific(a.data) {
		return formatScientific(a.data)
	}

	intParts := make([]string, len(a.data))
	fracParts := make([]string, len(a.data))
	intW, fracW, specialW := 0, 0, 0
	finite := false
	for i, v := range a.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			intParts[i] = special(v)
			specialW = max(specialW, len(intParts[i]))
			continue
		}
		s := strconv.FormatFloat(v, 'f', printPrecision, 64)
		s = strings.TrimRight(s, "0")
		ip, fp, _ := strings.Cut(s, ".")
		intParts[i], fracParts[i] = ip, fp
		intW = max(intW, len(ip))
		fracW = max(fracW, len(fp))
		finite = true
	}
	width := specialW
	if finite {
		width = max(width, intW+1+fracW)
	}
	for i, v := range a.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			words[i] = padLeft(intParts[i], width)
			continue
		}
		w := padLeft(intParts[i], intW) + "." + fracParts[i] + strings.Repeat(" ", fracW-len(fracParts[i]))
		words[i] = padLeft(w, width)
	}
	return words
}

// useScientific mirrors numpy's switch to exponent notation.
func useScientific(data []float64) bool {
	maxAbs, minAbs := 0.0, math.Inf(1)
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		abs := math.Abs(v)
		if abs == 0 {
			continue
		}
		maxAbs = max(maxAbs, abs)
		minAbs = min(minAbs, abs)
	}
	if maxAbs == 0 {
		return false
	}
	return maxAbs >= 1e8 || minAbs < 1e-4 || maxAbs/minAbs > 1e3
}

func formatScientific(data []float64) []string {
	mants := make([]string, len(data))
	exps := make([]string, len(data))
	fracW := 0
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			mants[i] = special(v)
			continue
		}
		s := strconv.FormatFloat(v, 'e', printPrecision, 64)
		m, e, _ := strings.Cut(s, "e")
		m = strings.TrimRight(m, "0")
		mants[i], exps[i] = m, "e"+e
		if _, fp, ok := strings.Cut(m, "."); ok {
			fracW = max(fracW, len(fp))
		}
	}

	words := make([]string, len(data))
	width := 0
	for i, m := range mants {
		if exps[i] == "" {
			words[i] = m
		} else {
			ip, fp, _ := strings.Cut(m, ".")
			words[i] = ip + "." + fp + strings.Repeat("0", fracW-len(fp)) + exps[i]
		}
		width = max(width, len(words[i]))
	}
	for i := range words {
		words[i] = padLeft(words[i], width)
	}
	return words
}

func special(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	}
	return "-inf"
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}
