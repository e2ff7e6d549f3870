// Package permission maps console roles to their permission sets and
// answers the "may this principal do X" questions the console asks before
// rendering an action or issuing a privileged call.
//
// The evaluator is a client-side mirror of the server's rules. It exists
// to hide or disable controls; it is not a security boundary, and every
// state-changing call is authorized again by the backend.
package permission
