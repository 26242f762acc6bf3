package request

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// validate is the shared validator instance. Struct tag rules cover the
// declarative part of request validation; anything contextual lives in the
// per-type Validate methods.
var validate = validator.New()

// ErrUnknownMethod is wrapped into decode errors for methods outside the
// routing set.
type ErrUnknownMethod struct {
	Name string
}

func (e *ErrUnknownMethod) Error() string {
	return fmt.Sprintf("unknown method %q", e.Name)
}

// constructors maps method names to empty payloads ready for decoding.
var constructors = map[string]func() Request{
	MethodCreateTable:         func() Request { return &CreateTable{} },
	MethodDropTable:           func() Request { return &DropTable{} },
	MethodInsert:              func() Request { return &Insert{} },
	MethodUpdate:              func() Request { return &Update{} },
	MethodDelete:              func() Request { return &Delete{} },
	MethodSelect:              func() Request { return &Select{} },
	MethodExecute:             func() Request { return &Execute{} },
	MethodExecuteBatch:        func() Request { return &ExecuteBatch{} },
	MethodBeginTransaction:    func() Request { return &BeginTransaction{} },
	MethodCommitTransaction:   func() Request { return &CommitTransaction{} },
	MethodRollbackTransaction: func() Request { return &RollbackTransaction{} },
	MethodGetTableInfo:        func() Request { return &GetTableInfo{} },
	MethodSyncSchema:          func() Request { return &SyncSchema{} },
	MethodIndexFile:           func() Request { return &IndexFile{} },
	MethodQueryAST:            func() Request { return &QueryAST{} },
	MethodQueryCST:            func() Request { return &QueryCST{} },
	MethodModifyAST:           func() Request { return &ModifyAST{} },
	MethodModifyCST:           func() Request { return &ModifyCST{} },
	MethodPing:                func() Request { return &Ping{} },
	MethodGetQueueStats:       func() Request { return &GetQueueStats{} },
}

// IsKnownMethod reports whether name is part of the routing set.
func IsKnownMethod(name string) bool {
	_, ok := constructors[name]
	return ok
}

// Decode builds the typed payload for method from the params mapping.
// It returns ErrUnknownMethod for methods outside the routing set and a
// decode error when params cannot be coerced into the payload shape.
// Decode does NOT run Validate; the dispatcher does that separately so a
// validation failure can be reported with the right error code.
func Decode(method string, params map[string]any) (Request, error) {
	ctor, ok := constructors[method]
	if !ok {
		return nil, &ErrUnknownMethod{Name: method}
	}

	req := ctor()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           req,
		WeaklyTypedInput: true, // JSON numbers arrive as float64
	})
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	if err := decoder.Decode(params); err != nil {
		return nil, fmt.Errorf("decode %s params: %w", method, err)
	}

	return req, nil
}

// validateStruct runs the declarative tag rules for a payload.
func validateStruct(req Request) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("field %s failed rule %q", f.Field(), f.Tag())
		}
		return err
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
