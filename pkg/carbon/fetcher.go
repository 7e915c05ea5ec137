/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package carbon

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/avast/retry-go"
)

// ZoneSnapshot is one zone's most recently fetched carbon reading.
type ZoneSnapshot struct {
	Zone                 string
	CarbonIntensity      float64
	FossilFreePercentage float64
	FetchedAt            time.Time
	IsMock               bool
}

// Fetcher is CarbonMonitor's one variation point: given a zone code,
// return its current reading. HTTPFetcher talks to ElectricityMap;
// MockFetcher synthesizes data for demos and tests.
type Fetcher interface {
	Fetch(ctx context.Context, zone string) (ZoneSnapshot, error)
}

// electricityMapBaseURL and electricityMapFallbackURL are the two
// endpoints the original ElectricityMap client tries in order.
const (
	electricityMapBaseURL     = "https://api-access.electricitymaps.com/free-tier"
	electricityMapFallbackURL = "https://api.electricitymap.org/v3"
)

// HTTPFetcher fetches live carbon intensity from ElectricityMap,
// falling back to a secondary host on failure — no HTTP client
// wrapper library exists anywhere in the retrieved corpus for this
// (every pack repo that makes HTTP calls does so with net/http
// directly), so this wraps the standard library's client with
// avast/retry-go, which the teacher's go.mod already carries.
type HTTPFetcher struct {
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPFetcher builds an HTTPFetcher with a 30s request timeout,
// matching the original client's per-request timeout.
func NewHTTPFetcher(apiKey string) *HTTPFetcher {
	return &HTTPFetcher{
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type electricityMapResponse struct {
	Zone                 string  `json:"zone"`
	CarbonIntensity      float64 `json:"carbonIntensity"`
	FossilFreePercentage float64 `json:"fossilFreePercentage"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, zone string) (ZoneSnapshot, error) {
	urls := []string{
		fmt.Sprintf("%s/carbon-intensity/latest?zone=%s", electricityMapBaseURL, zone),
		fmt.Sprintf("%s/carbon-intensity/latest?zone=%s", electricityMapFallbackURL, zone),
	}

	attempt := 0
	var result ZoneSnapshot
	err := retry.Do(
		func() error {
			url := urls[attempt]
			if attempt < len(urls)-1 {
				attempt++
			}
			snap, err := f.fetchOne(ctx, url, zone)
			if err != nil {
				return err
			}
			result = snap
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(len(urls))),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return ZoneSnapshot{}, fmt.Errorf("all carbon API endpoints failed for zone %s: %w", zone, err)
	}
	return result, nil
}

func (f *HTTPFetcher) fetchOne(ctx context.Context, url, zone string) (ZoneSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ZoneSnapshot{}, err
	}
	req.Header.Set("auth-token", f.APIKey)
	req.Header.Set("User-Agent", "carbon-hub/1.0")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return ZoneSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ZoneSnapshot{}, fmt.Errorf("zone %s: unexpected status %d", zone, resp.StatusCode)
	}

	var body electricityMapResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ZoneSnapshot{}, fmt.Errorf("zone %s: decoding response: %w", zone, err)
	}

	return ZoneSnapshot{
		Zone:                 zone,
		CarbonIntensity:      body.CarbonIntensity,
		FossilFreePercentage: body.FossilFreePercentage,
		FetchedAt:            time.Now(),
	}, nil
}

// mockBaseline is the original client's MOCK_DATA table: a baseline
// carbon intensity and fossil-free percentage per zone, used when no
// live ElectricityMap credentials are configured.
var mockBaseline = map[string]struct {
	CarbonIntensity      float64
	FossilFreePercentage float64
}{
	"CA": {120, 75},
	"BR": {180, 65},
	"BO": {450, 35},
	"CN": {650, 20},
	"KR": {350, 45},
	"JP": {380, 40},
}

// mockWave is one zone's sinusoid shape: amplitude and phase offset
// (as a fraction of a full cycle) around the 300-second cycle every
// zone shares. These come straight from the original mock generator's
// per-zone comments (Canada low variance, Brazil 120° shifted, Bolivia
// 240° shifted, China's amplitude kept well below its baseline-to-next
// -worst-zone gap so it always stays worst, Korea and Japan 180° apart
// so they trade the top spot).
var mockWave = map[string]struct {
	Amplitude float64
	Phase     float64
}{
	"CA": {80, 0},
	"BR": {100, 0.33},
	"BO": {150, 0.67},
	"CN": {10, 0},
	"KR": {30, 0},
	"JP": {70, 0.5},
}

const mockCycleSeconds = 300.0

// MockFetcher synthesizes carbon intensity data with the same
// time-varying sinusoid shape as the original's _fetch_mock_data, so
// a demo cluster sees realistic region-swapping behavior without any
// ElectricityMap credentials.
type MockFetcher struct {
	rand *rand.Rand
	now  func() time.Time
}

// NewMockFetcher builds a MockFetcher. seed fixes the noise term for
// reproducible tests; production wiring passes a time-derived seed.
func NewMockFetcher(seed int64) *MockFetcher {
	return &MockFetcher{rand: rand.New(rand.NewSource(seed)), now: time.Now}
}

func (f *MockFetcher) Fetch(_ context.Context, zone string) (ZoneSnapshot, error) {
	baseline, ok := mockBaseline[zone]
	if !ok {
		baseline.CarbonIntensity = float64(50 + f.rand.Intn(551))
		baseline.FossilFreePercentage = float64(20 + f.rand.Intn(76))
	}
	wave, ok := mockWave[zone]
	if !ok {
		wave = struct {
			Amplitude float64
			Phase     float64
		}{100, f.rand.Float64()}
	}

	now := f.now()
	phase := math.Mod(float64(now.Unix()), mockCycleSeconds) / mockCycleSeconds
	offset := math.Sin((phase+wave.Phase)*2*math.Pi) * wave.Amplitude
	noise := float64(f.rand.Intn(31) - 15)

	intensity := baseline.CarbonIntensity + offset + noise
	if intensity < 50 {
		intensity = 50
	}

	return ZoneSnapshot{
		Zone:                 zone,
		CarbonIntensity:      intensity,
		FossilFreePercentage: baseline.FossilFreePercentage,
		FetchedAt:            now,
		IsMock:               true,
	}, nil
}
