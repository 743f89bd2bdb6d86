package tsnlat

// errors.go defines the error kinds surfaced by topology construction and
// stream evaluation, an aggregation helper, and file-system preflight checks
// used by tools built on the library.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrorKind classifies the failures the model can surface.  InvalidTopology
// is detected before any delay computation and is fatal for the whole run;
// the other kinds are scoped to the single stream that produced them.
type ErrorKind int

const (
	// InvalidTopology marks a malformed topology document: duplicate or
	// reserved names, dangling edge endpoints, a port on two edges, or an
	// unsatisfiable gate schedule
	InvalidTopology ErrorKind = iota

	// PathNotFound marks a stream whose receiver cannot be reached from
	// its sender over the topology's edges
	PathNotFound

	// InvalidPriority marks a stream priority outside 0-7, or one that an
	// enabled gate schedule never admits
	InvalidPriority

	// PortOverflow marks a frame that cannot fit the link or gate
	// constraints of an egress port even with the port to itself
	PortOverflow
)

func (ek ErrorKind) String() string {
	switch ek {
	case InvalidTopology:
		return "InvalidTopology"
	case PathNotFound:
		return "PathNotFound"
	case InvalidPriority:
		return "InvalidPriority"
	case PortOverflow:
		return "PortOverflow"
	}

	return "UnknownErrorKind"
}

// EvalError ties an ErrorKind to the entity that produced it.  Stream is
// empty for topology-level errors; Node and Port locate the failing hop
// when one is known.
type EvalError struct {
	Kind   ErrorKind
	Stream string
	Node   string
	Port   string
	Detail string
}

func (ee *EvalError) Error() string {
	loc := make([]string, 0, 3)
	if len(ee.Stream) > 0 {
		loc = append(loc, "stream "+ee.Stream)
	}
	if len(ee.Node) > 0 {
		loc = append(loc, "node "+ee.Node)
	}
	if len(ee.Port) > 0 {
		loc = append(loc, "port "+ee.Port)
	}
	if len(loc) == 0 {
		return fmt.Sprintf("%s: %s", ee.Kind, ee.Detail)
	}

	return fmt.Sprintf("%s: %s: %s", ee.Kind, strings.Join(loc, " "), ee.Detail)
}

// topoError builds a topology-level EvalError from a format string.
func topoError(format string, args ...any) *EvalError {
	return &EvalError{Kind: InvalidTopology, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind carried by err, reporting whether err (or
// anything it wraps) is an EvalError at all.
func KindOf(err error) (ErrorKind, bool) {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}

	return 0, false
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	err_msg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			err_msg = append(err_msg, err.Error())
		}
	}
	if len(err_msg) == 0 {
		return nil
	}

	return errors.New(strings.Join(err_msg, ","))
}

// CheckDirectories probes the file system for the existence
// of every directory listed in the list of files.  Returns a boolean
// indicating whether all dirs are valid, and returns an aggregated error
// if any checks failed.
func CheckDirectories(dirs []string) (bool, error) {
	// make sure that every directory name included exists
	failures := []string{}

	// for every offered (non-empty) directory
	for _, dir := range dirs {
		if len(dir) == 0 {
			continue
		}

		// look for a extension, if any.   Having one means not a directory
		ext := filepath.Ext(dir)

		// ext being empty means this is a directory, otherwise a path
		if ext != "" {
			failures = append(failures, fmt.Sprintf("%s not a directory", dir))

			continue
		}

		if _, err := os.Stat(dir); err != nil {
			failures = append(failures, fmt.Sprintf("%s not reachable", dir))

			continue
		}
	}
	if len(failures) == 0 {
		return true, nil
	}

	err := errors.New(strings.Join(failures, ","))

	return false, err
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	return CheckFiles(names, true)
}

// CheckOutputFiles probes the file system to ensure that every
// argument filename can be written.
func CheckOutputFiles(names []string) (bool, error) {
	return CheckFiles(names, false)
}

// CheckFiles probes the file system for permitted access to all the
// argument filenames, optionally checking also for the existence
// of those files for the purposes of reading them.
func CheckFiles(names []string, checkExistence bool) (bool, error) {
	// make sure that the directory of each named file exists
	errs := make([]error, 0)

	for _, name := range names {

		// skip non-existent files
		if len(name) == 0 || name == "/tmp" {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	// if required, check for the reachability and existence of each file
	if checkExistence {
		for _, name := range names {
			if len(name) == 0 {
				continue
			}
			if _, err := os.Stat(name); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if len(errs) == 0 {
		return true, nil
	}

	return false, ReportErrs(errs)
}
