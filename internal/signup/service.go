// Package signup はログイン画面の簡易登録フォームと、3ステップのトライアル申込ウィザードを扱う。
// 入力検証、プレーンテキストへの正規化、トライアルのチェックアウト作成を行ってから
// セッションマネージャーに登録を委譲する。
package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/brandshield/internal/checkout"
	"github.com/hitoshi/brandshield/internal/model"
	"github.com/hitoshi/brandshield/internal/security"
)

// ErrUnknownStep は存在しないウィザードステップを指定した場合のエラー。
var ErrUnknownStep = errors.New("unknown signup step")

// ウィザードのステップ番号。
const (
	StepAccount    = 1
	StepBrand      = 2
	StepAgreements = 3
)

// QuickRegistration はログイン画面の登録フォーム。
type QuickRegistration struct {
	Name            string `json:"name" validate:"required,max=200"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,max=72"`
	ConfirmPassword string `json:"confirmPassword"`
}

// AccountStep はウィザードのステップ1（アカウント情報）。
type AccountStep struct {
	FirstName       string `json:"firstName" validate:"required,max=100"`
	LastName        string `json:"lastName" validate:"required,max=100"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword"`
	Company         string `json:"company" validate:"max=200"`
	Phone           string `json:"phone" validate:"max=50"`
}

// BrandStep はウィザードのステップ2（ブランド保護の設定）。
type BrandStep struct {
	BrandKeywords      string `json:"brandKeywords" validate:"required,keywords"`
	WhitelistedDomains string `json:"whitelistedDomains" validate:"omitempty,domains"`
	TrademarkNumber    string `json:"trademarkNumber" validate:"max=100"`
	TrademarkOwner     string `json:"trademarkOwner" validate:"max=200"`
}

// AgreementStep はウィザードのステップ3（トライアル規約への同意）。
type AgreementStep struct {
	AgreedToTrial bool `json:"agreedToTrial" validate:"eq=true"`
	AgreedToTerms bool `json:"agreedToTerms" validate:"eq=true"`
}

// TrialSignup はウィザード全体の入力。JSONでは各ステップのフィールドがフラットに並ぶ。
type TrialSignup struct {
	AccountStep
	BrandStep
	AgreementStep
}

// BrandProfile は申込時に入力されたブランド保護設定。
type BrandProfile struct {
	Keywords           []string `json:"keywords"`
	WhitelistedDomains []string `json:"whitelistedDomains"`
	TrademarkNumber    string   `json:"trademarkNumber,omitempty"`
	TrademarkOwner     string   `json:"trademarkOwner,omitempty"`
	Company            string   `json:"company,omitempty"`
	Phone              string   `json:"phone,omitempty"`
}

// Result は登録完了時の結果。
type Result struct {
	Identity          *model.Identity
	CheckoutSessionID string
	Brand             *BrandProfile
}

// Registrar はセッションを確立する登録処理。session.Managerが実装する。
type Registrar interface {
	Register(ctx context.Context, email, password, name string) (*model.Identity, error)
}

// Recorder はチェックアウト呼び出しのレイテンシを記録する。
type Recorder interface {
	ObserveCheckoutLatency(d time.Duration)
}

// Config はトライアルの条件。
type Config struct {
	TrialDays  int // デフォルト: 30
	PriceCents int // 月額（セント）。デフォルト: 2900
}

// Service は登録フローを実行する。
type Service struct {
	registrar Registrar
	checkout  checkout.Client
	sanitizer *security.TextSanitizer
	cfg       Config
	logger    *slog.Logger
	recorder  Recorder
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(registrar Registrar, checkoutClient checkout.Client, cfg Config, logger *slog.Logger, recorder Recorder) *Service {
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = 30
	}
	if cfg.PriceCents <= 0 {
		cfg.PriceCents = 2900
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registrar: registrar,
		checkout:  checkoutClient,
		sanitizer: security.NewTextSanitizer(),
		cfg:       cfg,
		logger:    logger,
		recorder:  recorder,
	}
}

// QuickRegister はログイン画面の登録フォームを処理する。
// 検証に失敗した場合は*ValidationErrorまたはmodel.ErrPasswordMismatchを返す。
func (s *Service) QuickRegister(ctx context.Context, in *QuickRegistration) (*Result, error) {
	in.Name = s.sanitizer.Sanitize(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	if err := checkPasswords(in, in.Password, in.ConfirmPassword); err != nil {
		return nil, err
	}

	return s.complete(ctx, in.Email, in.Password, in.Name, nil)
}

// ValidateStep はウィザードの1ステップ分だけを検証する。
func (s *Service) ValidateStep(step int, in *TrialSignup) error {
	s.normalize(in)

	switch step {
	case StepAccount:
		return checkPasswords(&in.AccountStep, in.Password, in.ConfirmPassword)
	case StepBrand:
		return check(&in.BrandStep)
	case StepAgreements:
		return check(&in.AgreementStep)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownStep, step)
	}
}

// Signup はウィザード全体を検証し、トライアルのチェックアウトを作成してから登録する。
func (s *Service) Signup(ctx context.Context, in *TrialSignup) (*Result, error) {
	for _, step := range []int{StepAccount, StepBrand, StepAgreements} {
		if err := s.ValidateStep(step, in); err != nil {
			return nil, err
		}
	}

	brand := &BrandProfile{
		Keywords:           SplitList(in.BrandKeywords),
		WhitelistedDomains: SplitList(in.WhitelistedDomains),
		TrademarkNumber:    in.TrademarkNumber,
		TrademarkOwner:     in.TrademarkOwner,
		Company:            in.Company,
		Phone:              in.Phone,
	}
	fullName := in.FirstName + " " + in.LastName

	return s.complete(ctx, in.Email, in.Password, fullName, brand)
}

// complete はチェックアウトの作成が成功した場合にだけ登録する。
func (s *Service) complete(ctx context.Context, email, password, name string, brand *BrandProfile) (*Result, error) {
	start := time.Now()
	sessionID, err := s.checkout.CreateTrialSubscription(ctx, checkout.TrialRequest{
		Email:       email,
		Name:        name,
		TrialDays:   s.cfg.TrialDays,
		PriceAmount: s.cfg.PriceCents,
	})
	if s.recorder != nil {
		s.recorder.ObserveCheckoutLatency(time.Since(start))
	}
	if err != nil {
		s.logger.Error("トライアルのチェックアウト作成に失敗しました",
			slog.String("error", err.Error()),
		)
		if errors.Is(err, model.ErrCheckoutFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", model.ErrCheckoutFailed, err)
	}

	identity, err := s.registrar.Register(ctx, email, password, name)
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	attrs := []any{
		slog.String("user_id", identity.ID),
		slog.String("checkout_session_id", sessionID),
	}
	if brand != nil {
		attrs = append(attrs, slog.Int("keyword_count", len(brand.Keywords)))
	}
	s.logger.Info("トライアル申込が完了しました", attrs...)

	return &Result{
		Identity:          identity,
		CheckoutSessionID: sessionID,
		Brand:             brand,
	}, nil
}

func (s *Service) normalize(in *TrialSignup) {
	in.FirstName = s.sanitizer.Sanitize(in.FirstName)
	in.LastName = s.sanitizer.Sanitize(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.Company = s.sanitizer.Sanitize(in.Company)
	in.Phone = s.sanitizer.Sanitize(in.Phone)
	in.BrandKeywords = s.sanitizer.Sanitize(in.BrandKeywords)
	in.WhitelistedDomains = s.sanitizer.Sanitize(in.WhitelistedDomains)
	in.TrademarkNumber = s.sanitizer.Sanitize(in.TrademarkNumber)
	in.TrademarkOwner = s.sanitizer.Sanitize(in.TrademarkOwner)
}

func check(v any) error {
	if fields, _ := checkStruct(v); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// checkPasswords は必須項目の欠落、パスワード不一致、その他の検証エラーの順に判定する。
func checkPasswords(v any, password, confirm string) error {
	fields, missing := checkStruct(v)
	if missing {
		return &ValidationError{Fields: fields}
	}
	if password != confirm {
		return model.ErrPasswordMismatch
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
