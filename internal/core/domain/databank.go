package domain

import "time"

// DataBankItemType is the kind of atomic fact.
type DataBankItemType string

const (
	DataBankStatistic DataBankItemType = "statistic"
	DataBankQuote     DataBankItemType = "quote"
	DataBankFinding   DataBankItemType = "finding"
	DataBankAhaMoment DataBankItemType = "aha_moment"
)

// DataBankItemTypes lists the fan-out sections in write order.
var DataBankItemTypes = []DataBankItemType{
	DataBankStatistic,
	DataBankQuote,
	DataBankAhaMoment,
	DataBankFinding,
}

// DataBankItem is one fact derived from an extraction. It belongs to a
// report and is deleted with it.
type DataBankItem struct {
	ID         string           `json:"id"`
	ReportID   string           `json:"report_id"`
	Type       DataBankItemType `json:"type"`
	Content    string           `json:"content"`
	Context    string           `json:"context,omitempty"`
	SourcePage *int             `json:"source_page,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// FanOutResult summarises one fan-out run.
type FanOutResult struct {
	Written int `json:"written"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}
