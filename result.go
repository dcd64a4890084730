package sqz

// Result reports what a compress or decompress operation produced.
//
// Exactly one of Bytes and Path is set depending on where the output went. Observers registered via WithObserver
// receive the Result together with the operation's error once the operation settles.
type Result struct {
	// Bytes holds the output when the operation wrote to an in-memory buffer, nil otherwise.
	//
	// When the caller passed a *bytes.Buffer as the output endpoint, Bytes aliases that buffer's contents.
	Bytes []byte

	// Path is the absolute path of the file or directory the operation wrote, empty when output went to a buffer.
	//
	// The path may differ from what the caller asked for: outputs created inside an existing directory get numeric
	// suffixes ("file-1.gz", "dir-2") rather than overwriting existing names.
	Path string

	// N is the total number of bytes written to the output.
	N int64

	// Entries counts the files the operation touched: archive entries added or extracted, files visited by a
	// directory walk, or 1 for a single-stream operation.
	Entries int
}
