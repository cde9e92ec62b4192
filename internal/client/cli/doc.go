// Package cli implements ballotctl, the operator command line of the
// coordinator.
//
// # Commands
//
//	session create|list|show|update|start|close|archive|delete|reset|export|verify-secret
//	voters group <session> <group>
//	voters file <session> <path>      rows of "name;email"
//	vote <session> --candidate NAME   the token is prompted for unless --token is given
//	reconciliation                    open reconciliation items
//	token --operator ID               mint an operator JWT from the shared secret
//	health, version
//
// Global flags --config, --server, --access-token and --timeout override the
// values loaded by the config package; --json prints raw API replies.
//
// Admin secrets come from --secret or are read from the terminal without
// echo (see GetPassword). The x/term call sits behind the readPassword seam
// so tests never touch a real terminal.
package cli
