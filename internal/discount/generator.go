package discount

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/models"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
)

var (
	ErrEmptyCharset   = errors.New("charset must include numbers or letters")
	ErrInvalidOptions = errors.New("invalid discount options")
)

const (
	digitsUnambiguous  = "23456789"
	digitsAll          = "0123456789"
	lettersUnambiguous = "ABCDEFGHJKMNPQRSTUVWXYZ"
	lettersAll         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var segmentPrefixes = map[string]string{
	models.SegmentNewCustomer:       "NEW",
	models.SegmentReturningCustomer: "RETURN",
	models.SegmentVIP:               "VIP",
	models.SegmentInactive:          "BACK",
}

var personalizedPrefixes = map[string]string{
	models.SegmentNewCustomer:       "WELCOME",
	models.SegmentReturningCustomer: "THANKS",
	models.SegmentVIP:               "VIP",
	models.SegmentInactive:          "COMEBACK",
}

// CodeOptions control the shape of a generated code string.
// The zero value means: default prefix, default length, digits and letters,
// ambiguous characters excluded.
type CodeOptions struct {
	Prefix         string
	OmitPrefix     bool
	Length         int
	ExcludeNumbers bool
	ExcludeLetters bool
	AllowAmbiguous bool
	Suffix         string
}

// Options describe a full discount code record
type Options struct {
	Percentage    *float64
	FixedAmount   *float64
	MinOrderValue float64
	MaxUses       *int
	ExpiryDays    int
	Segments      []string
	CampaignID    string
	UserID        string
	Code          CodeOptions
}

// Generator produces discount codes from a cryptographic random source
type Generator struct {
	prefix            string
	length            int
	expiryDays        int
	defaultPercentage float64
	random            io.Reader
	now               func() time.Time
	logger            *observability.Logger
}

// NewGenerator creates a Generator with defaults from cfg
func NewGenerator(cfg config.DiscountConfig, logger *observability.Logger) *Generator {
	g := &Generator{
		prefix:            strings.ToUpper(cfg.Prefix),
		length:            cfg.Length,
		expiryDays:        cfg.ExpiryDays,
		defaultPercentage: cfg.DefaultPercentage,
		random:            rand.Reader,
		now:               time.Now,
		logger:            logger,
	}
	if g.length <= 0 {
		g.length = 8
	}
	if g.expiryDays <= 0 {
		g.expiryDays = 7
	}
	if g.defaultPercentage <= 0 {
		g.defaultPercentage = 10
	}
	return g
}

func charset(opts CodeOptions) string {
	var b strings.Builder
	if !opts.ExcludeNumbers {
		if opts.AllowAmbiguous {
			b.WriteString(digitsAll)
		} else {
			b.WriteString(digitsUnambiguous)
		}
	}
	if !opts.ExcludeLetters {
		if opts.AllowAmbiguous {
			b.WriteString(lettersAll)
		} else {
			b.WriteString(lettersUnambiguous)
		}
	}
	return b.String()
}

// GenerateCode returns prefix + random body + suffix
func (g *Generator) GenerateCode(opts CodeOptions) (string, error) {
	chars := charset(opts)
	if chars == "" {
		return "", ErrEmptyCharset
	}
	length := opts.Length
	if length <= 0 {
		length = g.length
	}

	max := big.NewInt(int64(len(chars)))
	body := make([]byte, length)
	for i := range body {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		body[i] = chars[n.Int64()]
	}

	prefix := g.prefix
	if opts.Prefix != "" {
		prefix = strings.ToUpper(opts.Prefix)
	}
	if opts.OmitPrefix {
		prefix = ""
	}
	return prefix + string(body) + strings.ToUpper(opts.Suffix), nil
}

// SegmentedCode uses the first segment to pick a readable prefix (VIP, NEW, ...)
func (g *Generator) SegmentedCode(segments []string, opts CodeOptions) (string, error) {
	opts.Prefix = g.prefix
	if len(segments) > 0 {
		if p, ok := segmentPrefixes[segments[0]]; ok {
			opts.Prefix = p
		}
	}
	return g.GenerateCode(opts)
}

// PersonalizedCode prefixes by the user's primary segment (WELCOME, THANKS, ...)
// and suffixes the last three characters of the user id.
func (g *Generator) PersonalizedCode(user models.User, opts CodeOptions) (string, error) {
	opts.Prefix = g.prefix
	if len(user.Segments) > 0 {
		if p, ok := personalizedPrefixes[user.Segments[0]]; ok {
			opts.Prefix = p
		}
	}
	opts.Suffix = lastN(user.ExternalID, 3)
	return g.GenerateCode(opts)
}

// TimeLimitedCode appends the last three digits of the current unix time and
// returns the expiry alongside the code.
func (g *Generator) TimeLimitedCode(expiryDays int, opts CodeOptions) (string, time.Time, error) {
	if expiryDays <= 0 {
		expiryDays = g.expiryDays
	}
	now := g.now()
	opts.Suffix = lastN(strconv.FormatInt(now.Unix(), 10), 3)
	code, err := g.GenerateCode(opts)
	if err != nil {
		return "", time.Time{}, err
	}
	return code, now.AddDate(0, 0, expiryDays), nil
}

// GenerateBatch returns up to count distinct codes. It gives up after
// count*10 attempts and logs a warning if fewer codes were produced.
func (g *Generator) GenerateBatch(ctx context.Context, count int, opts CodeOptions) ([]string, error) {
	if count <= 0 {
		return []string{}, nil
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	maxAttempts := count * 10
	for attempts := 0; len(codes) < count && attempts < maxAttempts; attempts++ {
		code, err := g.GenerateCode(opts)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	if len(codes) < count {
		g.logger.Warn(observability.WithFields(ctx,
			observability.Field{Key: "requested", Value: count},
			observability.Field{Key: "generated", Value: len(codes)},
		), fmt.Sprintf("could only generate %d unique codes out of %d requested", len(codes), count))
	}
	return codes, nil
}

// Generate builds a complete discount record. A fixed amount wins over a
// percentage; with neither set the default percentage applies.
func (g *Generator) Generate(opts Options) (*models.DiscountCode, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	var (
		code string
		err  error
	)
	switch {
	case opts.Code.Prefix != "" || opts.Code.OmitPrefix:
		code, err = g.GenerateCode(opts.Code)
	case len(opts.Segments) > 0:
		code, err = g.SegmentedCode(opts.Segments, opts.Code)
	default:
		code, err = g.GenerateCode(opts.Code)
	}
	if err != nil {
		return nil, err
	}
	if _, err := Validate(code); err != nil {
		return nil, fmt.Errorf("%w: generated code %q", err, code)
	}

	expiryDays := opts.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = g.expiryDays
	}

	now := g.now()
	dc := &models.DiscountCode{
		Code:          code,
		MinOrderValue: opts.MinOrderValue,
		MaxUses:       opts.MaxUses,
		ExpiryDate:    now.AddDate(0, 0, expiryDays),
		IsActive:      true,
		Segments:      opts.Segments,
		CampaignID:    opts.CampaignID,
		UserID:        opts.UserID,
		CreatedAt:     now,
	}
	if opts.FixedAmount != nil {
		amount := *opts.FixedAmount
		dc.FixedAmount = &amount
	} else {
		pct := g.defaultPercentage
		if opts.Percentage != nil {
			pct = *opts.Percentage
		}
		dc.Percentage = &pct
	}
	return dc, nil
}

func validateOptions(opts Options) error {
	if opts.Percentage != nil && (*opts.Percentage <= 0 || *opts.Percentage > 100) {
		return fmt.Errorf("%w: percentage must be in (0, 100]", ErrInvalidOptions)
	}
	if opts.FixedAmount != nil && *opts.FixedAmount <= 0 {
		return fmt.Errorf("%w: fixed amount must be positive", ErrInvalidOptions)
	}
	if opts.MaxUses != nil && *opts.MaxUses < 1 {
		return fmt.Errorf("%w: maxUses must be at least 1", ErrInvalidOptions)
	}
	if opts.MinOrderValue < 0 || opts.ExpiryDays < 0 {
		return fmt.Errorf("%w: negative values are not allowed", ErrInvalidOptions)
	}
	return nil
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
