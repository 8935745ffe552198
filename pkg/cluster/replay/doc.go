/*
Package replay implements the per-peer replay log that lets a
reconnecting endpoint catch up on everything it missed instead of
forcing a full resync.

Each peer gets its own directory holding zero or more numerically-named
rotated files plus an optional "current" file, each a zlib-compressed
stream of netstring-framed JSON records (see Record). Append flushes
the zlib writer after every record so a concurrent Replay can observe
it without waiting for a Close; the stream is only finalized (zlib
trailer written) on Rotate or Close, so a process crash between Append
calls can leave a current file that decompresses cleanly up to its last
flushed record. Replay tolerates a read/decompression error on any one
file by logging and moving to the next, rather than aborting the whole
catch-up.
*/
package replay
