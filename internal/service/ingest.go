package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/ledgercore/internal/database/repository"
	"github.com/jask/ledgercore/internal/money"
)

// IngestService imports CSV statements. Every accepted row is created
// through the transaction service so imported data is aggregate-consistent
// from the moment it lands, and the rule sweep runs over the new rows with
// the import source recorded in its audit trail.
type IngestService struct {
	Transactions *TransactionService
	Accounts     *repository.AccountRepo
	Rules        *RuleService

	accountCache map[string]repository.Account
}

type IngestResult struct {
	Imported int
	Skipped  int
	Errors   []error
}

// CSV columns: date, payee, amount, account, memo (memo optional).
// Dates are YYYY-MM-DD in the given location; amounts are signed decimals,
// expenses negative.
func (s *IngestService) ImportCSV(ctx context.Context, r io.Reader, tz *time.Location) (IngestResult, error) {
	res := IngestResult{}
	csvr := csv.NewReader(bufio.NewReader(r))
	csvr.TrimLeadingSpace = true
	csvr.FieldsPerRecord = -1
	var imported []string
	line := 0
	for {
		line++
		rec, err := csvr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		if len(rec) < 4 {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: expected at least 4 columns (date, payee, amount, account)", line))
			continue
		}
		date, err := parseLocalDate(rec[0], tz)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d date: %w", line, err))
			continue
		}
		payee := strings.TrimSpace(rec[1])
		amount, err := money.Parse(rec[2])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d amount: %w", line, err))
			continue
		}
		acct, err := s.accountForName(ctx, rec[3])
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d account: %w", line, err))
			continue
		}
		var memo *string
		if len(rec) >= 5 && strings.TrimSpace(rec[4]) != "" {
			m := strings.TrimSpace(rec[4])
			memo = &m
		}

		t := repository.Transaction{
			ID:         uuid.NewString(),
			AccountID:  acct.ID,
			Date:       date,
			Payee:      payee,
			Amount:     amount,
			Memo:       memo,
			Status:     repository.StatusUncleared,
			Kind:       repository.KindStandard,
			SourceHash: hashSource(acct.ID, date.Format(time.DateOnly), amount.String(), payee),
		}
		created, err := s.Transactions.Create(ctx, t, SourceImport)
		if err != nil {
			// skip duplicates on the source-hash unique constraint
			if strings.Contains(err.Error(), "UNIQUE") {
				res.Skipped++
				continue
			}
			res.Errors = append(res.Errors, fmt.Errorf("line %d insert: %w", line, err))
			continue
		}
		imported = append(imported, created.ID)
		res.Imported++
	}

	if s.Rules != nil && len(imported) > 0 {
		if _, err := s.Rules.Run(ctx, imported, SourceImport); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("rule sweep: %w", err))
		}
	}
	return res, nil
}

func hashSource(parts ...string) *string {
	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	h := fmt.Sprintf("%x", sum[:])
	return &h
}

func parseLocalDate(s string, loc *time.Location) (time.Time, error) {
	layout := "2006-01-02"
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(layout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *IngestService) accountForName(ctx context.Context, name string) (repository.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Account{}, errors.New("account name required")
	}
	if s.accountCache == nil {
		s.accountCache = make(map[string]repository.Account)
	}
	if acct, ok := s.accountCache[name]; ok {
		return acct, nil
	}
	id := deterministicAccountID(name)
	existing, err := s.Accounts.Get(ctx, id)
	if err != nil {
		return repository.Account{}, err
	}
	if existing != nil {
		s.accountCache[name] = *existing
		return *existing, nil
	}
	acct := repository.Account{ID: id, Name: name, Institution: name, AccountType: "checking"}
	if err := s.Accounts.Upsert(ctx, acct); err != nil {
		return repository.Account{}, err
	}
	s.accountCache[name] = acct
	return acct, nil
}

func deterministicAccountID(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}
