/*
Copyright 2026 The nhschooldata Authors

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

/*
Package nhschooldata provides access to the fall enrollment data published
by the New Hampshire Department of Education.  The package level FetchEnr
and GetAvailableYears functions use a default Client configured from the
environment; see NewClientFromEnv for the variables that are honored and
the sample program in the cmd/nhenr package for an example of how this
library can be used.
*/
package nhschooldata

// Version is the release of this library.  It is also sent as part of the
// User-Agent header on every request.
const Version = "0.1.0"
