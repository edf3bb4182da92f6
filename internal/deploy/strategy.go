package deploy

import (
	stderrors "errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/util"
)

// StepType names one stage of a deployment.
type StepType string

const (
	StepBackup  StepType = "backup"
	StepUpload  StepType = "upload"
	StepMove    StepType = "move"
	StepChown   StepType = "chown"
	StepChmod   StepType = "chmod"
	StepRestart StepType = "restart"
	StepCleanup StepType = "cleanup"
)

// TempFilePlaceholder is replaced by the quoted temp path when a step runs.
const TempFilePlaceholder = "{{tempFile}}"

// TempRoot is where uploads land before being moved into place.
const TempRoot = "/tmp"

// BackupStampFormat is appended to backups as <path>.bak-<stamp>.
const BackupStampFormat = "20060102-150405"

// now is swapped in tests.
var now = time.Now

// Step is one remote command in a plan.
type Step struct {
	Type    StepType `json:"type"`
	Command string   `json:"command"`
}

// Render substitutes the temp file path into the step's command.
func (s Step) Render(tempFile string) string {
	return util.ReplacePlaceholder(s.Command, TempFilePlaceholder, tempFile)
}

// Soft reports whether a failure of this step leaves the deployment going.
func (s Step) Soft() bool {
	return s.Type == StepBackup || s.Type == StepCleanup
}

// Strategy is the ordered plan for one destination.
type Strategy struct {
	RemotePath  string `json:"remotePath"`
	Owner       string `json:"owner,omitempty"`
	Permissions string `json:"permissions,omitempty"`
	Sudo        bool   `json:"sudo"`
	Steps       []Step `json:"steps"`
}

// StepTypes lists the plan's step types in order.
func (s Strategy) StepTypes() []StepType {
	types := make([]StepType, len(s.Steps))
	for i, step := range s.Steps {
		types[i] = step.Type
	}
	return types
}

// Options control how a file is put in place. Nil pointers take defaults:
// Backup defaults to true, Sudo to what the path suggests.
type Options struct {
	Owner        string `json:"owner,omitempty" validate:"omitempty,owner"`
	Permissions  string `json:"permissions,omitempty" validate:"omitempty,perms"`
	Backup       *bool  `json:"backup,omitempty"`
	Restart      string `json:"restart,omitempty" validate:"singleline"`
	Sudo         *bool  `json:"sudo,omitempty"`
	SudoPassword string `json:"-"`
	// FallbackSudoPassword is used when sudo is on and SudoPassword is empty.
	// Unlike SudoPassword it doesn't turn sudo on by itself.
	FallbackSudoPassword string `json:"-"`
}

func (o Options) secret() string {
	return firstNonEmpty(o.SudoPassword, o.FallbackSudoPassword)
}

// BackupEnabled reports the effective backup flag.
func (o Options) BackupEnabled() bool {
	return o.Backup == nil || *o.Backup
}

var (
	ownerPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.-]*\$?|[0-9]+)(:([A-Za-z_][A-Za-z0-9_.-]*\$?|[0-9]+))?$`)
	permsPattern = regexp.MustCompile(`^([0-7]{3,4}|[ugoa]*[-+=][rwxXst]*(,[ugoa]*[-+=][rwxXst]*)*)$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("owner", func(fl validator.FieldLevel) bool {
		return ownerPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("perms", func(fl validator.FieldLevel) bool {
		return permsPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("singleline", func(fl validator.FieldLevel) bool {
		return !strings.ContainsAny(fl.Field().String(), "\r\n")
	})
	return v
}

// ValidateOptions checks owner and permission strings before they reach a
// remote command line.
func ValidateOptions(opts Options) error {
	err := validate.Struct(opts)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.WrapWithCode(err, errors.ErrDeploy, "Invalid deploy options", "")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "owner":
		return errors.New(errors.ErrDeploy,
			fmt.Sprintf("Invalid owner %q", fe.Value()),
			"Use user or user:group, e.g. www-data:www-data")
	case "perms":
		return errors.New(errors.ErrDeploy,
			fmt.Sprintf("Invalid permissions %q", fe.Value()),
			"Use an octal mode like 644 or a symbolic one like u+x")
	default:
		return errors.New(errors.ErrDeploy,
			fmt.Sprintf("Invalid %s option", strings.ToLower(fe.Field())),
			"")
	}
}

// BuildStrategy plans the steps that move an uploaded temp file to remotePath.
// Owner and permissions not given in opts are filled in from the path.
func BuildStrategy(remotePath string, opts Options) (Strategy, error) {
	if !path.IsAbs(remotePath) || strings.ContainsAny(remotePath, "\x00\n") {
		return Strategy{}, errors.New(errors.ErrDeploy,
			fmt.Sprintf("Remote path %q must be absolute", remotePath),
			"Deploy targets look like /var/www/html/index.html")
	}
	if err := ValidateOptions(opts); err != nil {
		return Strategy{}, err
	}

	needs := DetectDeploymentNeeds(remotePath)
	s := Strategy{
		RemotePath:  remotePath,
		Owner:       firstNonEmpty(opts.Owner, needs.SuggestedOwner),
		Permissions: firstNonEmpty(opts.Permissions, needs.SuggestedPerms),
	}
	if opts.Sudo != nil {
		s.Sudo = *opts.Sudo
	} else {
		s.Sudo = needs.NeedsSudo || opts.SudoPassword != ""
	}

	prefix := ""
	if s.Sudo {
		prefix = util.SudoPrefix(opts.secret())
	}
	target := util.ShellQuote(remotePath)

	if opts.BackupEnabled() {
		backup := util.ShellQuote(remotePath + ".bak-" + now().Format(BackupStampFormat))
		s.Steps = append(s.Steps, Step{
			Type:    StepBackup,
			Command: fmt.Sprintf("[ ! -e %s ] || %scp -p %s %s", target, prefix, target, backup),
		})
	}

	s.Steps = append(s.Steps, Step{
		Type: StepMove,
		Command: fmt.Sprintf("%smkdir -p %s && %smv %s %s",
			prefix, util.ShellQuote(path.Dir(remotePath)), prefix, TempFilePlaceholder, target),
	})

	if s.Owner != "" {
		s.Steps = append(s.Steps, Step{
			Type:    StepChown,
			Command: fmt.Sprintf("%schown %s %s", prefix, util.ShellQuote(s.Owner), target),
		})
	}

	if s.Permissions != "" {
		s.Steps = append(s.Steps, Step{
			Type:    StepChmod,
			Command: fmt.Sprintf("%schmod %s %s", prefix, util.ShellQuote(s.Permissions), target),
		})
	}

	if restart := strings.TrimSpace(opts.Restart); restart != "" {
		s.Steps = append(s.Steps, Step{Type: StepRestart, Command: restartCommand(restart, prefix)})
	}

	s.Steps = append(s.Steps, Step{Type: StepCleanup, Command: "rm -f " + TempFilePlaceholder})

	return s, nil
}

// restartCommand treats a single word as a systemd unit and anything else as
// a shell command.
func restartCommand(restart, prefix string) string {
	if !strings.ContainsAny(restart, " \t") {
		return prefix + "systemctl restart " + util.ShellQuote(restart)
	}
	if prefix == "" {
		return restart
	}
	return prefix + "sh -c " + util.ShellQuote(restart)
}

// TempFilename returns a unique upload path for base under TempRoot.
func TempFilename(base string) string {
	base = path.Base(strings.ReplaceAll(base, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return fmt.Sprintf("%s/sshman-deploy-%s-%s", TempRoot, base, uuid.NewString()[:8])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
