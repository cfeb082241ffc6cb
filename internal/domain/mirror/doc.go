/*
Package mirror runs the download pipeline behind POST /download.

A request moves through a fixed sequence of states:

	Idle -> PreparingDirectory -> Crawling -> PostProcessing ->
	Archiving -> Responding -> Cleanup -> Idle

Any non-idle state may fall into Failed, which always continues to Cleanup.
Requests that derive the same name are serialized by a keyed lock held from
PreparingDirectory until Cleanup finishes; different names run concurrently.

Failures are reported as *Error values carrying a Kind (crawl, filesystem,
archive or invalid request) and the state in which they happened.
*/
package mirror
