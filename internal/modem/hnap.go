package modem

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cablewatch/cablewatch/config"
	"github.com/cablewatch/cablewatch/internal/errors"
	"github.com/cablewatch/cablewatch/internal/logging"
	"github.com/cablewatch/cablewatch/internal/telemetry"
)

var hnapLog = logging.Component("hnap")

// hnapSession holds the credentials minted by a successful login.
type hnapSession struct {
	uid        string
	privateKey string
}

// HNAP talks to Motorola/Arris modems over the HNAP1 SOAP interface.
//
// The modem serves JSON with a text/html content type and self-signed TLS;
// both quirks are accommodated here rather than fought.
type HNAP struct {
	name     string
	endpoint string
	username string
	password string
	http     *http.Client

	mu      sync.Mutex
	session *hnapSession

	// login deduplicates concurrent re-login attempts after a session
	// expiry.
	login singleflight.Group
}

// NewHNAP creates an HNAP backend.
func NewHNAP(cfg Config) *HNAP {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	return &HNAP{
		name:     cfg.Name,
		endpoint: strings.TrimRight(cfg.URL, "/") + "/HNAP1/",
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// Modem certificates are self-signed.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

// Fetch retrieves the combined status response. On a stale session the
// current session is invalidated and a re-login is started; the cycle is
// still reported as failed so the sampler's cadence stays intact.
func (c *HNAP) Fetch(ctx context.Context) ([]byte, error) {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"GetMultipleHNAPs": map[string]string{
			"GetMotoStatusStartupSequence":       "", // config file
			"GetMotoStatusConnectionInfo":        "", // system uptime
			"GetMotoStatusDownstreamChannelInfo": "",
			"GetMotoStatusUpstreamChannelInfo":   "",
			"GetMotoStatusSoftware":              "", // firmware version
		},
	}

	raw, err := c.post(ctx, "GetMultipleHNAPs", sess, body)
	if err != nil {
		return nil, err
	}

	// Check the envelope result here: a non-OK result means the session
	// expired, which is an auth problem, not a data-shape problem.
	var envelope struct {
		GetMultipleHNAPsResponse struct {
			GetMultipleHNAPsResult string
		}
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Fetchf("decode status envelope: %v", err)
	}
	if envelope.GetMultipleHNAPsResponse.GetMultipleHNAPsResult != "OK" {
		c.invalidateSession()
		hnapLog.Warn("session expired, will re-login on next cycle")
		return nil, errors.Fetchf("session expired (result %q)",
			envelope.GetMultipleHNAPsResponse.GetMultipleHNAPsResult)
	}

	return raw, nil
}

// Parse converts a GetMultipleHNAPs response into a Reading.
func (c *HNAP) Parse(raw []byte) (*telemetry.Reading, error) {
	return parseHNAPStatus(c.name, raw)
}

// currentSession returns the active session, logging in if there is none.
func (c *HNAP) currentSession(ctx context.Context) (*hnapSession, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		return sess, nil
	}

	v, err, _ := c.login.Do("login", func() (any, error) {
		return c.doLogin(ctx)
	})
	if err != nil {
		return nil, err
	}

	sess = v.(*hnapSession)
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess, nil
}

func (c *HNAP) invalidateSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// doLogin performs the two-step HNAP challenge login.
func (c *HNAP) doLogin(ctx context.Context) (*hnapSession, error) {
	// Step 1: request a challenge.
	request := map[string]any{
		"Login": map[string]string{
			"Action":        "request",
			"Username":      c.username,
			"LoginPassword": "",
			"Captcha":       "",
			"PrivateLogin":  "LoginPassword",
		},
	}
	raw, err := c.post(ctx, "Login", nil, request)
	if err != nil {
		return nil, err
	}

	var challengeResp struct {
		LoginResponse struct {
			Challenge string
			Cookie    string
			PublicKey string
		}
	}
	if err := json.Unmarshal(raw, &challengeResp); err != nil {
		return nil, errors.Fetchf("decode login challenge: %v", err)
	}

	lr := challengeResp.LoginResponse
	if lr.Challenge == "" || lr.PublicKey == "" {
		return nil, errors.Fetchf("login challenge incomplete")
	}

	privateKey := hnapPrivateKey(lr.PublicKey, c.password, lr.Challenge)
	loginPassword := hnapLoginPassword(privateKey, lr.Challenge)
	sess := &hnapSession{uid: lr.Cookie, privateKey: privateKey}

	// Step 2: answer the challenge.
	answer := map[string]any{
		"Login": map[string]string{
			"Action":        "login",
			"Username":      c.username,
			"LoginPassword": loginPassword,
			"Captcha":       "",
			"PrivateLogin":  "LoginPassword",
		},
	}
	raw, err = c.post(ctx, "Login", sess, answer)
	if err != nil {
		return nil, err
	}

	var loginResp struct {
		LoginResponse struct {
			LoginResult string
		}
	}
	if err := json.Unmarshal(raw, &loginResp); err != nil {
		return nil, errors.Fetchf("decode login result: %v", err)
	}
	if loginResp.LoginResponse.LoginResult != "OK" {
		return nil, errors.Fetchf("login rejected: result %q",
			loginResp.LoginResponse.LoginResult)
	}

	hnapLog.Info("logged in", "endpoint", c.endpoint)
	return sess, nil
}

// post sends one HNAP SOAP action. A nil session sends the pre-login auth
// header.
func (c *HNAP) post(ctx context.Context, action string, sess *hnapSession, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Fetchf("encode %s request: %v", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Fetchf("build %s request: %v", action, err)
	}

	privateKey := "withoutloginkey"
	if sess != nil {
		privateKey = sess.privateKey
		req.AddCookie(&http.Cookie{Name: "uid", Value: sess.uid})
		req.AddCookie(&http.Cookie{Name: "PrivateKey", Value: sess.privateKey})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HNAP_AUTH", hnapAuthHeader(privateKey, action, time.Now()))
	req.Header.Set("SOAPACTION", hnapActionPrefix+action)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Fetchf("%s: %v", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Fetchf("%s: HTTP %d", action, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Fetchf("%s: read body: %v", action, err)
	}

	hnapLog.Debug("hnap response", "action", action, "bytes", len(raw))
	return raw, nil
}
