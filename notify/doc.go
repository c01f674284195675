// Package notify delivers one-time codes to contact channels.
//
// The engine depends only on [Dispatcher]. [HTTPDispatcher] talks to an SMS
// gateway; [LogDispatcher] replaces it in development. No implementation
// logs a code or an unredacted destination.
package notify
