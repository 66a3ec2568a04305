package common

// ErrorLog is the interface to the environment error logging functionality.
type ErrorLog interface {
	// LogError logs an error.
	LogError(filterLevel ErrSeverity, msg string)
	// LogMessage logs a standard message.
	LogMessage(filterLevel ErrSeverity, msg string)
}

// AttachPt is a component attachment point holding at most one T.
type AttachPt[T any] struct {
	hasAttached bool
	comp        T
}

// Attach attaches an interface of type T to the attachment point.
func (a *AttachPt[T]) Attach(comp T) Err {
	if a.hasAttached {
		return ErrAttachTooMany
	}
	a.comp = comp
	a.hasAttached = true
	return OK
}

// First returns the attached interface, the zero T when nothing is attached.
func (a *AttachPt[T]) First() T { return a.comp }

// HasAttached returns true once an interface is attached.
func (a *AttachPt[T]) HasAttached() bool { return a.hasAttached }

// Component is the base struct for the verification components.
// It provides error logging attachment and component naming.
type Component struct {
	name         string
	errorLogger  AttachPt[ErrorLog]
	errVerbosity ErrSeverity
}

// InitComponent initializes a Component. This is favored over a constructor
// so it can be safely embedded and initialized in place.
func (c *Component) InitComponent(name string) {
	c.name = name
	c.errVerbosity = ErrSevError
}

func (c *Component) ComponentName() string { return c.name }

// ErrorLogAttachPt returns the error logger attachment point.
func (c *Component) ErrorLogAttachPt() *AttachPt[ErrorLog] {
	return &c.errorLogger
}

// LogError logs an error if an error logger is attached.
func (c *Component) LogError(err *Error) {
	if c.errorLogger.HasAttached() {
		c.errorLogger.First().LogError(err.Sev, c.name+": "+err.Error())
	}
}

// LogMessage logs a message if the level matches the verbosity and a logger is attached.
func (c *Component) LogMessage(filterLevel ErrSeverity, msg string) {
	if filterLevel <= c.errVerbosity && c.errorLogger.HasAttached() {
		c.errorLogger.First().LogMessage(filterLevel, c.name+": "+msg)
	}
}

// SetErrorLogLevel sets the most verbose message severity passed to the
// attached error log. Errors are always passed.
func (c *Component) SetErrorLogLevel(level ErrSeverity) {
	c.errVerbosity = level
}

// Logged is implemented by every type embedding Component.
type Logged interface {
	ErrorLogAttachPt() *AttachPt[ErrorLog]
	SetErrorLogLevel(level ErrSeverity)
}

// AttachErrorLog attaches log to each component and sets its verbosity.
func AttachErrorLog(log ErrorLog, level ErrSeverity, comps ...Logged) {
	for _, c := range comps {
		c.ErrorLogAttachPt().Attach(log)
		c.SetErrorLogLevel(level)
	}
}
