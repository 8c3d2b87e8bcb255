package course

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/kazi/core"
)

var (
	extPolicyTag  = "extpolicy"
	extPolicyText = "extension policy must be one of: per_team, per_student"
)

func init() {
	_ = core.Validate.RegisterValidation(extPolicyTag, extPolicyValidation)
	core.RegisterCustomTranslation(extPolicyTag, extPolicyText)
}

func extPolicyValidation(fl validator.FieldLevel) bool {
	return ExtensionPolicy(fl.Field().String()).Valid()
}
