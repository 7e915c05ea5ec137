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

package test

import (
	"time"

	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"
)

// FakeClock returns a clock.Clock fixed at t, the same
// k8s.io/utils/clock/testing type the teacher's controllers use to
// make time-dependent tests deterministic (e.g. launch timeout,
// liveness checks).
func FakeClock(t time.Time) clock.Clock {
	return clocktesting.NewFakeClock(t)
}
