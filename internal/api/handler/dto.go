package handler

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jmerrifield20/chainledger/internal/ledger"
	"github.com/jmerrifield20/chainledger/internal/model"
	"github.com/jmerrifield20/chainledger/internal/money"
)

const (
	maxDescription = 500
	maxLines       = 500
)

var accountTypes = []any{
	string(model.AccountTypeAsset), string(model.AccountTypeLiability), string(model.AccountTypeEquity),
	string(model.AccountTypeIncome), string(model.AccountTypeExpense),
}

var accountSubtypes = []any{
	string(model.SubtypeCash), string(model.SubtypeBank), string(model.SubtypeReceivable),
	string(model.SubtypePayable), string(model.SubtypeTax), string(model.SubtypeFixedAsset),
	string(model.SubtypeLoan),
}

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ParentCode  string `json:"parent_code"`
	IsGroup     bool   `json:"is_group"`
	Subtype     string `json:"subtype"`
	Description string `json:"description"`
}

// Validate implements validation.Validatable.
func (r CreateAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(1, 32)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Type, validation.Required, validation.In(accountTypes...)),
		validation.Field(&r.Subtype, validation.In(accountSubtypes...)),
		validation.Field(&r.Description, validation.Length(0, maxDescription)),
	)
}

func (r CreateAccountRequest) toModel() model.CreateAccountRequest {
	return model.CreateAccountRequest{
		Code:        strings.TrimSpace(r.Code),
		Name:        strings.TrimSpace(r.Name),
		Type:        model.AccountType(r.Type),
		ParentCode:  strings.TrimSpace(r.ParentCode),
		IsGroup:     r.IsGroup,
		Subtype:     model.AccountSubtype(r.Subtype),
		Description: r.Description,
	}
}

// LineRequest is one journal line. Account is an account ID or code.
type LineRequest struct {
	Account     string       `json:"account"`
	Debit       money.Amount `json:"debit"`
	Credit      money.Amount `json:"credit"`
	Description string       `json:"description"`
}

// Validate implements validation.Validatable.
func (r LineRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Account, validation.Required),
		validation.Field(&r.Description, validation.Length(0, maxDescription)),
	)
}

// CreateEntryRequest is the body of POST /entries. Balance is checked when
// the draft is posted, not here.
type CreateEntryRequest struct {
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Lines       []LineRequest `json:"lines"`
	CreatedBy   string        `json:"created_by"`
}

// Validate implements validation.Validatable.
func (r CreateEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Date, validation.Date(model.DateLayout)),
		validation.Field(&r.Description, validation.Length(0, maxDescription)),
		validation.Field(&r.Lines, validation.Length(0, maxLines)),
		validation.Field(&r.CreatedBy, validation.Length(0, 100)),
	)
}

// UpdateEntryRequest is the body of PATCH /entries/:id. Omitted fields are
// left unchanged.
type UpdateEntryRequest struct {
	Date        *string       `json:"date"`
	Description *string       `json:"description"`
	Lines       []LineRequest `json:"lines"`
}

// Validate implements validation.Validatable.
func (r UpdateEntryRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Date, validation.NilOrNotEmpty, validation.Date(model.DateLayout)),
		validation.Field(&r.Description, validation.Length(0, maxDescription)),
		validation.Field(&r.Lines, validation.Length(0, maxLines)),
	)
}

// VoidRequest is the body of POST /entries/:id/void.
type VoidRequest struct {
	Date     string `json:"date"`
	Reason   string `json:"reason"`
	VoidedBy string `json:"voided_by"`
}

// Validate implements validation.Validatable.
func (r VoidRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Date, validation.Date(model.DateLayout)),
		validation.Field(&r.Reason, validation.Required, validation.Length(1, maxDescription)),
		validation.Field(&r.VoidedBy, validation.Length(0, 100)),
	)
}

func (r VoidRequest) toParams() (ledger.VoidParams, error) {
	d, err := parseOptionalDate(r.Date)
	if err != nil {
		return ledger.VoidParams{}, err
	}
	return ledger.VoidParams{Date: d, Reason: r.Reason, VoidedBy: r.VoidedBy}, nil
}

// resolveLines maps account codes to IDs. Unknown references are kept
// as-is so the validator can report them when the draft is posted.
func resolveLines(chart accountResolver, in []LineRequest) []model.Line {
	if in == nil {
		return nil
	}
	out := make([]model.Line, len(in))
	for i, l := range in {
		ref := strings.TrimSpace(l.Account)
		if a, ok := chart.Resolve(ref); ok {
			ref = a.ID
		}
		out[i] = model.Line{AccountID: ref, Debit: l.Debit, Credit: l.Credit, Description: l.Description}
	}
	return out
}

type accountResolver interface {
	Resolve(ref string) (*model.Account, bool)
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, errors.New("dates must be formatted as YYYY-MM-DD")
	}
	return t, nil
}
