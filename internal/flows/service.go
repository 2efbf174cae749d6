package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Validate.Verify != nil && s.deps.Validate.Store != nil
}

func (s Service) Issue(ctx context.Context, req IssueRequest) IssueResult {
	return RunIssue(ctx, req, s.deps.Issue)
}

func (s Service) Validate(ctx context.Context, wire string) ValidateResult {
	return RunValidate(ctx, wire, s.deps.Validate)
}

func (s Service) Revoke(ctx context.Context, wire string) RevokeResult {
	return RunRevoke(ctx, wire, s.deps.Revoke)
}

func (s Service) RevokeIdentity(ctx context.Context, identity string) error {
	return RunRevokeIdentity(ctx, identity, s.deps.Revoke)
}

func (s Service) Login(ctx context.Context, assertion string, req IssueRequest) LoginResult {
	return RunLogin(ctx, assertion, req, s.deps.Login, s.deps.Issue)
}
