// Package docquality annotates each document with word-level quality signals.
package docquality

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/nemanja-m/gotransform/pkg/core"
	"github.com/nemanja-m/gotransform/pkg/transforms"
)

func init() {
	transforms.MustRegister("docquality", func() any {
		return &Transform{column: "contents"}
	})
}

var bulletPrefixes = []string{"•", "●", "○", "■", "□", "▪", "▫", "*", "-"}

type Transform struct {
	column string
	strip  *regexp.Regexp
}

func (d *Transform) Name() string {
	return "docquality"
}

func (d *Transform) Describe() string {
	return "adds word statistics and heuristic quality ratios per document"
}

func (d *Transform) Configure(config map[string]string) error {
	if c, ok := config["content_column"]; ok {
		d.column = c
	}
	d.strip = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	return nil
}

func (d *Transform) Validate() error {
	if d.column == "" {
		return fmt.Errorf("content_column must not be empty")
	}
	return nil
}

type stats struct {
	totalWords    int64
	meanWordLen   float64
	symbolRatio   float64
	curlyRatio    float64
	loremRatio    float64
	bulletRatio   float64
	ellipsisRatio float64
}

func (d *Transform) score(text string) stats {
	var s stats
	var letters int
	symbols := strings.Count(text, "#") + strings.Count(text, "...") + strings.Count(text, "…")
	for word := range strings.FieldsSeq(text) {
		word = d.strip.ReplaceAllString(word, "")
		if word == "" {
			continue
		}
		s.totalWords++
		letters += utf8.RuneCountInString(word)
	}
	if s.totalWords > 0 {
		s.meanWordLen = float64(letters) / float64(s.totalWords)
		s.symbolRatio = float64(symbols) / float64(s.totalWords)
	}

	if n := utf8.RuneCountInString(text); n > 0 {
		s.curlyRatio = float64(strings.Count(text, "{")+strings.Count(text, "}")) / float64(n)
		s.loremRatio = float64(strings.Count(strings.ToLower(text), "lorem ipsum")) / float64(n)
	}

	lines := strings.Split(text, "\n")
	var bullets, ellipses int
	for _, line := range lines {
		line = strings.TrimSpace(line)
		for _, p := range bulletPrefixes {
			if strings.HasPrefix(line, p) {
				bullets++
				break
			}
		}
		if strings.HasSuffix(line, "...") || strings.HasSuffix(line, "…") {
			ellipses++
		}
	}
	s.bulletRatio = float64(bullets) / float64(len(lines))
	s.ellipsisRatio = float64(ellipses) / float64(len(lines))
	return s
}

func (d *Transform) Apply(_ context.Context, table *core.Table) ([]*core.Table, core.Metrics, error) {
	col, ok := table.Column(d.column)
	if !ok {
		return nil, nil, fmt.Errorf("missing column %q", d.column)
	}
	if col.Type != core.ColumnString {
		return nil, nil, fmt.Errorf("column %q is %s, expected string", d.column, col.Type)
	}

	n := table.NumRows()
	words := make([]any, n)
	meanLen := make([]any, n)
	symbols := make([]any, n)
	curly := make([]any, n)
	lorem := make([]any, n)
	bullets := make([]any, n)
	ellipses := make([]any, n)
	for i, v := range col.Values {
		text, _ := v.(string)
		s := d.score(text)
		words[i] = s.totalWords
		meanLen[i] = s.meanWordLen
		symbols[i] = s.symbolRatio
		curly[i] = s.curlyRatio
		lorem[i] = s.loremRatio
		bullets[i] = s.bulletRatio
		ellipses[i] = s.ellipsisRatio
	}

	out := table
	for _, c := range []core.Column{
		{Name: "docq_total_words", Type: core.ColumnInt64, Values: words},
		{Name: "docq_mean_word_len", Type: core.ColumnFloat64, Values: meanLen},
		{Name: "docq_symbol_to_word_ratio", Type: core.ColumnFloat64, Values: symbols},
		{Name: "docq_curly_bracket_ratio", Type: core.ColumnFloat64, Values: curly},
		{Name: "docq_lorem_ipsum_ratio", Type: core.ColumnFloat64, Values: lorem},
		{Name: "docq_bullet_point_ratio", Type: core.ColumnFloat64, Values: bullets},
		{Name: "docq_ellipsis_line_ratio", Type: core.ColumnFloat64, Values: ellipses},
	} {
		var err error
		if out, err = out.WithColumn(c); err != nil {
			return nil, nil, err
		}
	}

	return []*core.Table{out}, core.Metrics{"total_docs_count": float64(n)}, nil
}
