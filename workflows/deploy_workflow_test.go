package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imranansari/fork-deploy/activities"
	"github.com/imranansari/fork-deploy/config"
	"github.com/imranansari/fork-deploy/uploads"
)

type fakeVerifier struct {
	mu       sync.Mutex
	result   *activities.ForkVerification
	err      error
	accounts []string
}

func (f *fakeVerifier) VerifyFork(ctx context.Context, account string) (*activities.ForkVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = append(f.accounts, account)
	return f.result, f.err
}

func (f *fakeVerifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}

type fakeCreator struct {
	mu    sync.Mutex
	err   error
	count int
	log   *[]string
}

func (f *fakeCreator) CreateFork(ctx context.Context, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.log != nil {
		*f.log = append(*f.log, "fork:"+account)
	}
	return f.err
}

type fakeProvisioner struct {
	mu           sync.Mutex
	unconfigured bool
	result       *activities.ProvisionResult
	err          error
	inputs       []activities.ProvisionInput
	log          *[]string
}

func (f *fakeProvisioner) Configured() bool {
	return !f.unconfigured
}

func (f *fakeProvisioner) ProvisionService(ctx context.Context, input activities.ProvisionInput) (*activities.ProvisionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.log != nil {
		*f.log = append(*f.log, "provision:"+input.Account)
	}
	return f.result, f.err
}

func (f *fakeProvisioner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

var testOptions = Options{
	Mode:              config.ModeReject,
	Upstream:          config.UpstreamConfig{Owner: "iconic05", Repo: "Space-XMD", Branch: "main"},
	ForkSettleDelay:   5 * time.Second,
	ServiceNamePrefix: "bot",
	ServiceNameMaxLen: 40,
}

func verified() *activities.ForkVerification {
	return &activities.ForkVerification{Exists: true, IsFork: true}
}

func provisioned(id string) *activities.ProvisionResult {
	return &activities.ProvisionResult{ServiceID: id, Raw: json.RawMessage(`{"service":{"id":"` + id + `"}}`)}
}

func newTestWorkflow(v *fakeVerifier, c *fakeCreator, p *fakeProvisioner, opts Options) (*DeployWorkflow, *[]time.Duration) {
	w := NewDeployWorkflow(v, c, p, opts)
	slept := &[]time.Duration{}
	w.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return w, slept
}

func TestDeploy_EmptyUsernameMakesNoCalls(t *testing.T) {
	for _, username := range []string{"", " ", "\t\n"} {
		v := &fakeVerifier{result: verified()}
		c := &fakeCreator{}
		p := &fakeProvisioner{result: provisioned("srv-1")}
		w, _ := newTestWorkflow(v, c, p, testOptions)

		_, err := w.Deploy(context.Background(), DeployInput{Account: username})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation), "username %q", username)
		assert.Equal(t, 0, v.calls())
		assert.Equal(t, 0, c.count)
		assert.Equal(t, 0, p.calls())
	}
}

func TestDeploy_MalformedUsernameMakesNoCalls(t *testing.T) {
	autofork := testOptions
	autofork.Mode = config.ModeAutoFork

	for _, username := range []string{"..", ".", "../iconic05", "a/b", "octo cat", "-octocat", "a%2Fb", strings.Repeat("a", 40)} {
		v := &fakeVerifier{result: &activities.ForkVerification{}}
		c := &fakeCreator{}
		p := &fakeProvisioner{result: provisioned("srv-1")}
		w, slept := newTestWorkflow(v, c, p, autofork)

		_, err := w.Deploy(context.Background(), DeployInput{Account: username})
		require.Error(t, err, "username %q", username)
		assert.True(t, errors.Is(err, ErrValidation), "username %q", username)
		assert.Equal(t, "Invalid GitHub username.", err.Error())
		assert.Equal(t, 0, v.calls())
		assert.Equal(t, 0, c.count)
		assert.Equal(t, 0, p.calls())
		assert.Empty(t, *slept)
	}
}

func TestDeploy_VerifiedForkProvisionsOnce(t *testing.T) {
	v := &fakeVerifier{result: verified()}
	c := &fakeCreator{}
	p := &fakeProvisioner{result: provisioned("srv-stub")}
	w, slept := newTestWorkflow(v, c, p, testOptions)

	artifact := &uploads.Artifact{Key: "k", Path: "/tmp/k-creds.json"}
	res, err := w.Deploy(context.Background(), DeployInput{RequestID: "r1", Account: "  octocat ", Artifact: artifact})
	require.NoError(t, err)

	assert.Equal(t, "srv-stub", res.ServiceID)
	assert.Equal(t, "bot-octocat", res.ServiceName)
	assert.False(t, res.Forked)
	assert.JSONEq(t, `{"service":{"id":"srv-stub"}}`, string(res.Service))

	require.Equal(t, 1, p.calls())
	assert.Equal(t, "octocat", p.inputs[0].Account)
	assert.Equal(t, "bot-octocat", p.inputs[0].ServiceName)
	assert.Same(t, artifact, p.inputs[0].Artifact)
	assert.Equal(t, []string{"octocat"}, v.accounts)
	assert.Equal(t, 0, c.count)
	assert.Empty(t, *slept)
}

func TestDeploy_RejectModeMissingRepo(t *testing.T) {
	v := &fakeVerifier{result: &activities.ForkVerification{Exists: false}}
	c := &fakeCreator{}
	p := &fakeProvisioner{result: provisioned("srv-1")}
	w, _ := newTestWorkflow(v, c, p, testOptions)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "ghost"})
	require.Error(t, err)

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.True(t, errors.Is(err, ErrForkMissing))
	assert.Contains(t, clientErr.Message, "https://github.com/iconic05/Space-XMD/fork")
	assert.Equal(t, 0, c.count)
	assert.Equal(t, 0, p.calls())
}

func TestDeploy_UnverifiedForkRejectedInBothModes(t *testing.T) {
	for _, mode := range config.ValidModes() {
		t.Run(mode, func(t *testing.T) {
			v := &fakeVerifier{result: &activities.ForkVerification{Exists: true, IsFork: false}}
			c := &fakeCreator{}
			p := &fakeProvisioner{result: provisioned("srv-1")}
			opts := testOptions
			opts.Mode = mode
			w, _ := newTestWorkflow(v, c, p, opts)

			_, err := w.Deploy(context.Background(), DeployInput{Account: "octocat"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnverifiedFork))
			assert.Contains(t, err.Error(), "not recognized as a fork")
			assert.Equal(t, 0, c.count)
			assert.Equal(t, 0, p.calls())
		})
	}
}

func TestDeploy_AutoForkCreatesWaitsThenProvisions(t *testing.T) {
	var order []string
	v := &fakeVerifier{result: &activities.ForkVerification{Exists: false}}
	c := &fakeCreator{log: &order}
	p := &fakeProvisioner{result: provisioned("srv-9"), log: &order}
	opts := testOptions
	opts.Mode = config.ModeAutoFork
	w, slept := newTestWorkflow(v, c, p, opts)

	res, err := w.Deploy(context.Background(), DeployInput{Account: "newbie"})
	require.NoError(t, err)

	assert.True(t, res.Forked)
	assert.Equal(t, "srv-9", res.ServiceID)
	assert.Equal(t, []string{"fork:newbie", "provision:newbie"}, order)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
}

func TestDeploy_CreatorFailureAborts(t *testing.T) {
	v := &fakeVerifier{result: &activities.ForkVerification{Exists: false}}
	c := &fakeCreator{err: &activities.RemoteCallError{
		Op:      "create fork",
		Payload: json.RawMessage(`{"message":"forbidden"}`),
		Err:     errors.New("403"),
	}}
	p := &fakeProvisioner{result: provisioned("srv-1")}
	opts := testOptions
	opts.Mode = config.ModeAutoFork
	w, slept := newTestWorkflow(v, c, p, opts)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "newbie"})
	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindCreator, remoteErr.Kind)
	assert.JSONEq(t, `{"message":"forbidden"}`, string(remoteErr.Detail))
	assert.Equal(t, 0, p.calls())
	assert.Empty(t, *slept)
}

func TestDeploy_CreatorWithoutCredentialsIsConfigError(t *testing.T) {
	v := &fakeVerifier{result: &activities.ForkVerification{Exists: false}}
	c := &fakeCreator{err: fmt.Errorf("no token: %w", activities.ErrNotConfigured)}
	p := &fakeProvisioner{result: provisioned("srv-1")}
	opts := testOptions
	opts.Mode = config.ModeAutoFork
	w, _ := newTestWorkflow(v, c, p, opts)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "newbie"})
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, 0, p.calls())
}

func TestDeploy_VerifierFailure(t *testing.T) {
	v := &fakeVerifier{err: &activities.RemoteCallError{
		Op:      "verify fork",
		Payload: json.RawMessage(`{"message":"boom"}`),
		Err:     errors.New("502"),
	}}
	c := &fakeCreator{}
	p := &fakeProvisioner{result: provisioned("srv-1")}
	w, _ := newTestWorkflow(v, c, p, testOptions)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "octocat"})
	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindVerifier, remoteErr.Kind)
	assert.JSONEq(t, `{"message":"boom"}`, string(remoteErr.Detail))
	assert.Equal(t, 0, p.calls())
}

func TestDeploy_ProvisionerFailure(t *testing.T) {
	v := &fakeVerifier{result: verified()}
	p := &fakeProvisioner{err: &activities.RemoteCallError{
		Op:      "provision service",
		Payload: json.RawMessage(`{"message":"quota"}`),
		Err:     errors.New("400"),
	}}
	w, _ := newTestWorkflow(v, &fakeCreator{}, p, testOptions)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "octocat"})
	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, KindProvisioner, remoteErr.Kind)
	assert.Equal(t, "Failed to start deployment.", remoteErr.Message)
}

func TestDeploy_ProvisionerNotConfigured(t *testing.T) {
	v := &fakeVerifier{result: verified()}
	p := &fakeProvisioner{unconfigured: true}
	w, _ := newTestWorkflow(v, &fakeCreator{}, p, testOptions)

	_, err := w.Deploy(context.Background(), DeployInput{Account: "octocat"})
	require.True(t, errors.Is(err, ErrNotConfigured))
	assert.Equal(t, 0, v.calls())
	assert.Equal(t, 0, p.calls())
}

func TestDeploy_SettleWaitCancelled(t *testing.T) {
	v := &fakeVerifier{result: &activities.ForkVerification{Exists: false}}
	p := &fakeProvisioner{result: provisioned("srv-1")}
	opts := testOptions
	opts.Mode = config.ModeAutoFork
	opts.ForkSettleDelay = time.Hour
	w := NewDeployWorkflow(v, &fakeCreator{}, p, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Deploy(ctx, DeployInput{Account: "newbie"})
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, p.calls())
}

func TestCheckFork_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		result      *activities.ForkVerification
		wantExists  bool
		wantFork    bool
		wantMessage string
	}{
		{"confirmed", verified(), true, true, "Fork confirmed"},
		{"not a fork", &activities.ForkVerification{Exists: true}, true, false, "not recognized as a fork"},
		{"missing", &activities.ForkVerification{}, false, false, "Repo not found under octocat"},
		{"fork flag without exists", &activities.ForkVerification{IsFork: true}, false, false, "Repo not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newTestWorkflow(&fakeVerifier{result: tt.result}, &fakeCreator{}, &fakeProvisioner{}, testOptions)

			res, err := w.CheckFork(context.Background(), "r", "octocat")
			require.NoError(t, err)
			assert.Equal(t, tt.wantExists, res.Exists)
			assert.Equal(t, tt.wantFork, res.Fork)
			assert.Contains(t, res.Message, tt.wantMessage)
		})
	}
}

func TestCheckFork_Validation(t *testing.T) {
	v := &fakeVerifier{result: verified()}
	w, _ := newTestWorkflow(v, &fakeCreator{}, &fakeProvisioner{}, testOptions)

	_, err := w.CheckFork(context.Background(), "r", "   ")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = w.CheckFork(context.Background(), "r", "..")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 0, v.calls())

	res, err := w.CheckFork(context.Background(), "r", strings.Repeat("a", 39))
	require.NoError(t, err)
	assert.True(t, res.Fork)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
