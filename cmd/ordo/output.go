package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/rexliu/ordo/pkg/core"
)

// itemView is the printable form of an item. Fraction parts are strings
// because they are unbounded integers.
type itemView struct {
	ID          string  `json:"id" yaml:"id"`
	Detail      string  `json:"detail" yaml:"detail"`
	Numerator   string  `json:"numerator" yaml:"numerator"`
	Denominator string  `json:"denominator" yaml:"denominator"`
	Order       float64 `json:"order" yaml:"order"`
	Rank        string  `json:"rank" yaml:"rank"`
	CreatedAt   string  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   string  `json:"updatedAt" yaml:"updatedAt"`
}

func toView(it core.Item) itemView {
	v := itemView{
		ID:        it.ID,
		Detail:    it.Detail,
		Order:     it.Order,
		Rank:      it.Rank,
		CreatedAt: formatMillis(it.CreatedAt),
		UpdatedAt: formatMillis(it.UpdatedAt),
	}
	if it.Fraction.Valid() {
		v.Numerator = it.Fraction.Num.String()
		v.Denominator = it.Fraction.Den.String()
	}
	return v
}

func toViews(items []core.Item) []itemView {
	views := make([]itemView, 0, len(items))
	for _, it := range items {
		views = append(views, toView(it))
	}
	return views
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// render writes v as json or yaml, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func printItemText(w io.Writer, it itemView) error {
	_, err := fmt.Fprintf(w, "%s  %s/%s  rank=%s  order=%s  %q\n",
		it.ID, it.Numerator, it.Denominator, it.Rank,
		strconv.FormatFloat(it.Order, 'g', -1, 64), it.Detail)
	return err
}

func printItemTable(w io.Writer, items []itemView) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "no items")
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "ID", "Fraction", "Order", "Rank", "Detail"})
	table.SetAutoWrapText(false)
	for i, it := range items {
		table.Append([]string{
			strconv.Itoa(i + 1),
			it.ID,
			it.Numerator + "/" + it.Denominator,
			strconv.FormatFloat(it.Order, 'g', -1, 64),
			it.Rank,
			it.Detail,
		})
	}
	table.Render()
	return nil
}
