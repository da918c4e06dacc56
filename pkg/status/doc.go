/*
Package status tracks finished documents and renders run summaries for fgnpmr.

	            +-------------+
	            | Replicator  |
	            +------+------+
	                   | StartPhase / LogResult
	            +------+------+
	            |   Tracker   |
	            +------+------+
	                   |
	      +------------+------------+
	      |                         |
	+-----+-----+             +-----+-----+
	| log.Logger|             |  Render   |
	| (console) |             |  (pterm)  |
	+-----------+             +-----------+

🎯 Purpose:
- Records every document the replicator finishes, with its outcome
- Keeps a running processed/total count across phases
- Renders the finished documents and the failures as tables

🔄 Flow:
1. The command wraps its console logger in a Tracker
2. The Tracker is handed to the replicator as its Logger
3. After Run, the command renders Docs and any *replicate.Errors

The Tracker is safe for concurrent use: the replicator reports from up to
replicate.MaxConcurrent goroutines at once.
*/
package status
