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

package optimizer

import "context"

// StubSolver is a deterministic test double: it returns whatever
// Output was configured, ignoring Input entirely. HubScheduler takes
// a Solver, never GreedySolver directly, so its own tests substitute
// this instead of exercising the real search.
type StubSolver struct {
	Output Output
	Err    error
}

func (s StubSolver) Solve(_ context.Context, _ Input) (Output, error) {
	return s.Output, s.Err
}

// New returns the Hub's production Solver.
func New() Solver {
	return GreedySolver{}
}
