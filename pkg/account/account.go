// Package account provides authenticated access to the DroneMobile REST API.
package account

import (
	"bytes"
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/firstech/drone-command/internal/log"
	"github.com/firstech/drone-command/pkg/auth"
	"github.com/firstech/drone-command/pkg/protocol"
	"github.com/firstech/drone-command/pkg/vehicle"
)

var (
	//go:embed version.txt
	libraryVersion string
)

// DefaultHost serves the DroneMobile REST API.
const DefaultHost = "api.dronemobile.com"

const apiVersion = "v1"

// MaxResponseLength caps API response bodies. Vehicle records include the full last-known state
// and run a few kilobytes each; anything approaching this limit is not a DroneMobile response.
const MaxResponseLength = 10 * 1024 * 1024

func buildUserAgent(app string) string {
	library := strings.TrimSpace("drone-sdk/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

// Account allows interaction with a DroneMobile account.
type Account struct {
	// The default UserAgent is constructed from the running binary's build info, but can be
	// overridden.
	UserAgent string
	Host      string

	auth   *auth.Manager
	client http.Client

	// mu guards vehicles. The proxy serves a single Account from concurrent handler goroutines.
	mu       sync.Mutex
	vehicles map[string]*vehicle.Vehicle
}

// New returns an [Account] that authenticates with the given credentials.
//
// Tokens are persisted under tokenDir (see [auth.NewManager]). Optional userAgent can be passed
// in; otherwise it is generated from build info.
func New(email, password, tokenDir, userAgent string) (*Account, error) {
	if email == "" {
		return nil, errors.New("account email not provided")
	}
	manager, err := auth.NewManager(email, password, tokenDir)
	if err != nil {
		return nil, err
	}
	return NewWithManager(manager, userAgent), nil
}

// NewWithManager returns an [Account] that uses a caller-constructed token manager.
func NewWithManager(manager *auth.Manager, userAgent string) *Account {
	a := &Account{
		UserAgent: buildUserAgent(userAgent),
		Host:      DefaultHost,
		auth:      manager,
		vehicles:  make(map[string]*vehicle.Vehicle),
	}
	manager.UserAgent = a.UserAgent
	return a
}

func (a *Account) url(endpoint string) string {
	return fmt.Sprintf("https://%s/api/%s/%s", a.Host, apiVersion, endpoint)
}

// sendRequest issues an authenticated request and returns the response body.
//
// A 401 response triggers a single forced token refresh and retry. Rate-limit responses map to
// [protocol.ErrRateLimited]; other non-200 responses return the body alongside a
// [protocol.HTTPError] so callers can extract endpoint-specific details.
func (a *Account) sendRequest(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	retried := false
	for {
		authHeader, err := a.auth.AuthHeader(ctx)
		if err != nil {
			return nil, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		url := a.url(endpoint)
		request, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
		}
		request.Header.Set("User-Agent", a.UserAgent)
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("Authorization", authHeader)
		request.Header.Set("Accept", "*/*")

		log.Debug("Sending %s request to %s", method, url)
		response, err := a.client.Do(request)
		if err != nil {
			return nil, &protocol.CommandError{Err: err, PossibleSuccess: false, PossibleTemporary: true}
		}

		limited := io.LimitedReader{R: response.Body, N: MaxResponseLength + 1}
		body, err := io.ReadAll(&limited)
		response.Body.Close()
		if err != nil {
			return nil, &protocol.CommandError{Err: err, PossibleSuccess: method == "POST", PossibleTemporary: false}
		}
		if len(body) == MaxResponseLength+1 {
			return nil, protocol.NewError("response exceeds maximum length", method == "POST", true)
		}

		log.Debug("Server returned %d: %s", response.StatusCode, http.StatusText(response.StatusCode))
		switch response.StatusCode {
		case http.StatusOK:
			return body, nil
		case http.StatusUnauthorized:
			if retried {
				return nil, &protocol.AuthenticationError{Err: &protocol.HTTPError{Code: response.StatusCode, Message: string(body)}}
			}
			log.Debug("Token rejected, refreshing and retrying")
			if _, err := a.auth.Refresh(ctx); err != nil {
				return nil, err
			}
			retried = true
			continue
		case http.StatusTooManyRequests:
			return nil, protocol.ErrRateLimited
		default:
			return body, &protocol.HTTPError{Code: response.StatusCode, Message: string(body)}
		}
	}
}

// Vehicles returns all vehicles associated with the account.
func (a *Account) Vehicles(ctx context.Context) ([]*vehicle.Vehicle, error) {
	body, err := a.sendRequest(ctx, "GET", "vehicle?limit=100", nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("unable to parse vehicle list: %w", err)
	}

	vehicles := make([]*vehicle.Vehicle, 0, len(page.Results))
	for _, raw := range page.Results {
		info, err := vehicle.UnmarshalInfo(raw)
		if err != nil {
			return nil, err
		}
		vehicles = append(vehicles, vehicle.New(a, info))
	}

	a.mu.Lock()
	for _, v := range vehicles {
		a.vehicles[v.ID()] = v
	}
	a.mu.Unlock()

	log.Info("Found %d vehicle(s)", len(vehicles))
	return vehicles, nil
}

// Vehicle returns the vehicle with the given ID, fetching the account's vehicle list if it hasn't
// been fetched already.
func (a *Account) Vehicle(ctx context.Context, id string) (*vehicle.Vehicle, error) {
	a.mu.Lock()
	v, ok := a.vehicles[id]
	a.mu.Unlock()
	if ok {
		return v, nil
	}
	vehicles, err := a.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range vehicles {
		if v.ID() == id {
			return v, nil
		}
	}
	return nil, protocol.ErrVehicleNotFound
}

// VehicleStatus fetches the current status record for a vehicle.
func (a *Account) VehicleStatus(ctx context.Context, id string) (*vehicle.Status, error) {
	body, err := a.sendRequest(ctx, "GET", "vehicle/"+id, nil)
	if err != nil {
		var httpErr *protocol.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusNotFound {
			return nil, protocol.ErrVehicleNotFound
		}
		return nil, err
	}
	status, err := vehicle.UnmarshalStatus(body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse vehicle status: %w", err)
	}
	return status, nil
}

// SendCommand sends a command to the device identified by deviceKey.
//
// The command must be one of the names the DroneMobile API recognizes (see [vehicle.ValidCommand]);
// unknown names are rejected without network traffic.
func (a *Account) SendCommand(ctx context.Context, deviceKey, command, deviceType string) (*vehicle.CommandResponse, error) {
	if !vehicle.ValidCommand(command) {
		return nil, fmt.Errorf("%w: %s", protocol.ErrInvalidCommand, command)
	}

	payload, err := json.Marshal(map[string]string{
		"device_key":  deviceKey,
		"command":     command,
		"device_type": deviceType,
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Sending %s command to device %s", command, deviceKey)
	body, err := a.sendRequest(ctx, "POST", "iot/command", payload)
	if err != nil {
		var httpErr *protocol.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusFailedDependency {
			return nil, &protocol.FailedCommandError{Command: command, Detail: commandFailureDetail(body)}
		}
		return nil, err
	}

	var response struct {
		Parsed json.RawMessage `json:"parsed"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &protocol.CommandError{Err: fmt.Errorf("unable to parse server response: %w", err), PossibleSuccess: true, PossibleTemporary: false}
	}
	return vehicle.UnmarshalCommandResponse(response.Parsed, command, deviceKey)
}

// PollDeviceStatus asks the DroneMobile module to report fresh status from the vehicle.
func (a *Account) PollDeviceStatus(ctx context.Context, deviceKey string) (*vehicle.CommandResponse, error) {
	return a.SendCommand(ctx, deviceKey, vehicle.CommandDeviceStatus, vehicle.DeviceTypeController)
}

func commandFailureDetail(body []byte) string {
	var response struct {
		Parsed struct {
			Detail string `json:"detail"`
		} `json:"parsed"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ""
	}
	return response.Parsed.Detail
}
