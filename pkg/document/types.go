package document

import (
	"bytes"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date encoded as "YYYY-MM-DD" in JSON
type Date struct {
	time.Time
}

// NewDate returns the date for year, month and day in UTC
func NewDate(year int, month time.Month, day int) *Date {
	return &Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// String returns the date in YYYY-MM-DD form
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("date must be a JSON string, got %s", data)
	}

	t, err := time.Parse(dateLayout, string(data[1:len(data)-1]))
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}
	d.Time = t
	return nil
}

// Document is a goods turnover document sent to the registry
type Document struct {
	Description    *Description `json:"description,omitempty"`
	Products       []Product    `json:"products,omitempty"`
	DocID          string       `json:"docId,omitempty"`
	DocStatus      string       `json:"docStatus,omitempty"`
	DocType        string       `json:"docType,omitempty"`
	ImportRequest  bool         `json:"importRequest"`
	OwnerINN       string       `json:"ownerInn,omitempty"`
	ParticipantINN string       `json:"participantInn,omitempty"`
	ProducerINN    string       `json:"producerInn,omitempty"`
	ProductionDate *Date        `json:"productionDate,omitempty"`
	ProductionType string       `json:"productionType,omitempty"`
	RegDate        *Date        `json:"regDate,omitempty"`
	RegNumber      string       `json:"regNumber,omitempty"`
}

// Description identifies the participant that submits the document
type Description struct {
	ParticipantINN string `json:"participantInn,omitempty"`
}

// Product is a single line of a document
type Product struct {
	CertificateDocument       string `json:"certificateDocument,omitempty"`
	CertificateDocumentDate   *Date  `json:"certificateDocumentDate,omitempty"`
	CertificateDocumentNumber string `json:"certificate_DocumentNumber,omitempty"`
	OwnerINN                  string `json:"ownerInn,omitempty"`
	ProducerINN               string `json:"producerInn,omitempty"`
	ProductionDate            *Date  `json:"productionDate,omitempty"`
	TNVEDCode                 string `json:"tnvedCode,omitempty"`
	UITCode                   string `json:"uitCode,omitempty"`
	UITUCode                  string `json:"uituCode,omitempty"`
}
