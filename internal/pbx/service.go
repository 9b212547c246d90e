package pbx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service manages the per-account PBX catalog: carriers, SIP trunks
// and Asterisk nodes. Credentials never leave JSON serialization.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

type ProviderInput struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Notes   string `json:"notes"`
	Active  *bool  `json:"active"`
}

type TrunkInput struct {
	ProviderID    string `json:"provider_id"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	Transport     string `json:"transport"`
	Codecs        string `json:"codecs"`
	CallerID      string `json:"caller_id"`
	MaxConcurrent int    `json:"max_concurrent"`
	CPS           int    `json:"cps"`
	Prefix        string `json:"prefix"`
	StripDigits   int    `json:"strip_digits"`
	Active        *bool  `json:"active"`
}

type NodeInput struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	AMIPort     int    `json:"ami_port"`
	AMIUser     string `json:"ami_user"`
	AMIPassword string `json:"ami_password"`
	Active      *bool  `json:"active"`
}

func (s *Service) CreateProvider(ctx context.Context, accountID string, in ProviderInput) (Provider, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Provider{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	p := Provider{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      strings.TrimSpace(in.Name),
		Country:   in.Country,
		Notes:     in.Notes,
		Active:    boolOr(in.Active, true),
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.CreateProvider(ctx, p); err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (s *Service) GetProvider(ctx context.Context, accountID, id string) (Provider, error) {
	return s.repo.GetProvider(ctx, accountID, id)
}

func (s *Service) ListProviders(ctx context.Context, accountID string) ([]Provider, error) {
	return s.repo.ListProviders(ctx, accountID)
}

func (s *Service) UpdateProvider(ctx context.Context, accountID, id string, in ProviderInput) (Provider, error) {
	p, err := s.repo.GetProvider(ctx, accountID, id)
	if err != nil {
		return Provider{}, err
	}
	if strings.TrimSpace(in.Name) != "" {
		p.Name = strings.TrimSpace(in.Name)
	}
	p.Country = in.Country
	p.Notes = in.Notes
	p.Active = boolOr(in.Active, p.Active)
	if err := s.repo.UpdateProvider(ctx, p); err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (s *Service) DeleteProvider(ctx context.Context, accountID, id string) error {
	return s.repo.DeleteProvider(ctx, accountID, id)
}

func (s *Service) CreateTrunk(ctx context.Context, accountID string, in TrunkInput) (Trunk, error) {
	if err := validateTrunk(in); err != nil {
		return Trunk{}, err
	}
	if _, err := s.repo.GetProvider(ctx, accountID, in.ProviderID); err != nil {
		return Trunk{}, err
	}
	t := Trunk{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		ProviderID:    in.ProviderID,
		Name:          strings.TrimSpace(in.Name),
		Host:          in.Host,
		Port:          intOr(in.Port, 5060),
		Username:      in.Username,
		Password:      in.Password,
		Transport:     strings.ToLower(defaultStr(in.Transport, "udp")),
		Codecs:        defaultStr(in.Codecs, "ulaw,alaw,g729"),
		CallerID:      in.CallerID,
		MaxConcurrent: intOr(in.MaxConcurrent, 30),
		CPS:           intOr(in.CPS, 5),
		Prefix:        in.Prefix,
		StripDigits:   in.StripDigits,
		Active:        boolOr(in.Active, true),
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.repo.CreateTrunk(ctx, t); err != nil {
		return Trunk{}, err
	}
	return t, nil
}

func (s *Service) GetTrunk(ctx context.Context, accountID, id string) (Trunk, error) {
	return s.repo.GetTrunk(ctx, accountID, id)
}

func (s *Service) ListTrunks(ctx context.Context, accountID string) ([]Trunk, error) {
	return s.repo.ListTrunks(ctx, accountID)
}

func (s *Service) UpdateTrunk(ctx context.Context, accountID, id string, in TrunkInput) (Trunk, error) {
	t, err := s.repo.GetTrunk(ctx, accountID, id)
	if err != nil {
		return Trunk{}, err
	}
	if strings.TrimSpace(in.Name) != "" {
		t.Name = strings.TrimSpace(in.Name)
	}
	if in.Host != "" {
		t.Host = in.Host
	}
	if in.Port != 0 {
		t.Port = in.Port
	}
	if in.Username != "" {
		t.Username = in.Username
	}
	if in.Password != "" {
		t.Password = in.Password
	}
	if in.Transport != "" {
		t.Transport = strings.ToLower(in.Transport)
	}
	if in.Codecs != "" {
		t.Codecs = in.Codecs
	}
	t.CallerID = in.CallerID
	if in.MaxConcurrent != 0 {
		t.MaxConcurrent = in.MaxConcurrent
	}
	if in.CPS != 0 {
		t.CPS = in.CPS
	}
	t.Prefix = in.Prefix
	t.StripDigits = in.StripDigits
	t.Active = boolOr(in.Active, t.Active)
	if !validTransport(t.Transport) {
		return Trunk{}, fmt.Errorf("%w: transport must be udp, tcp or tls", ErrValidation)
	}
	if err := s.repo.UpdateTrunk(ctx, t); err != nil {
		return Trunk{}, err
	}
	return t, nil
}

func (s *Service) DeleteTrunk(ctx context.Context, accountID, id string) error {
	return s.repo.DeleteTrunk(ctx, accountID, id)
}

func (s *Service) CreateNode(ctx context.Context, accountID string, in NodeInput) (Node, error) {
	if strings.TrimSpace(in.Name) == "" || in.Host == "" {
		return Node{}, fmt.Errorf("%w: name and host are required", ErrValidation)
	}
	if in.AMIUser == "" || in.AMIPassword == "" {
		return Node{}, fmt.Errorf("%w: ami_user and ami_password are required", ErrValidation)
	}
	n := Node{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Name:         strings.TrimSpace(in.Name),
		Host:         in.Host,
		AMIPort:      intOr(in.AMIPort, 5038),
		AMIUser:      in.AMIUser,
		AMIPassword:  in.AMIPassword,
		Active:       boolOr(in.Active, true),
		HealthStatus: HealthUnknown,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.repo.CreateNode(ctx, n); err != nil {
		return Node{}, err
	}
	return n, nil
}

func (s *Service) GetNode(ctx context.Context, accountID, id string) (Node, error) {
	return s.repo.GetNode(ctx, accountID, id)
}

func (s *Service) ListNodes(ctx context.Context, accountID string) ([]Node, error) {
	return s.repo.ListNodes(ctx, accountID)
}

func (s *Service) UpdateNode(ctx context.Context, accountID, id string, in NodeInput) (Node, error) {
	n, err := s.repo.GetNode(ctx, accountID, id)
	if err != nil {
		return Node{}, err
	}
	if strings.TrimSpace(in.Name) != "" {
		n.Name = strings.TrimSpace(in.Name)
	}
	if in.Host != "" {
		n.Host = in.Host
	}
	if in.AMIPort != 0 {
		n.AMIPort = in.AMIPort
	}
	if in.AMIUser != "" {
		n.AMIUser = in.AMIUser
	}
	if in.AMIPassword != "" {
		n.AMIPassword = in.AMIPassword
	}
	n.Active = boolOr(in.Active, n.Active)
	if err := s.repo.UpdateNode(ctx, n); err != nil {
		return Node{}, err
	}
	return n, nil
}

func (s *Service) DeleteNode(ctx context.Context, accountID, id string) error {
	return s.repo.DeleteNode(ctx, accountID, id)
}

// FirstActiveNode picks the account's default node when no explicit
// node binding exists on the campaign or agent.
func (s *Service) FirstActiveNode(ctx context.Context, accountID string) (Node, error) {
	return s.repo.FirstActiveNode(ctx, accountID)
}

// RecordHealth stores the outcome of an AMI reachability probe.
func (s *Service) RecordHealth(ctx context.Context, accountID, id string, ok bool) error {
	status := HealthError
	if ok {
		status = HealthOK
	}
	return s.repo.SetNodeHealth(ctx, accountID, id, status, s.clock().UTC())
}

func validateTrunk(in TrunkInput) error {
	if strings.TrimSpace(in.Name) == "" || in.Host == "" {
		return fmt.Errorf("%w: name and host are required", ErrValidation)
	}
	if in.ProviderID == "" {
		return fmt.Errorf("%w: provider_id is required", ErrValidation)
	}
	if in.Transport != "" && !validTransport(strings.ToLower(in.Transport)) {
		return fmt.Errorf("%w: transport must be udp, tcp or tls", ErrValidation)
	}
	if in.StripDigits < 0 {
		return fmt.Errorf("%w: strip_digits must not be negative", ErrValidation)
	}
	return nil
}

func validTransport(t string) bool {
	return t == "udp" || t == "tcp" || t == "tls"
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
