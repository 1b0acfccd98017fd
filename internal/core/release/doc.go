// Package release provides pure types and planning functions for release
// deployments.
//
// Nothing in this package performs I/O. The imperative shell
// (internal/shell/deployer) uses these values to decide which paths to create,
// which release directories to prune and how to render a crontab, then
// performs those operations through a remote executor.
//
// # Contents
//
//   - Target: DeploymentTarget, EnvPolicy, EnvironmentTooling, HookConfig
//   - Layout: Paths derived from a base path and a version (NewLayout)
//   - Stages: The per-release deploy state machine (Stage, ValidateTransition)
//   - Retention: Which release directories to keep (PlanRetention)
//   - Crontab: Template rendering (RenderCrontab)
//   - Errors: Deploy step failures (StepError)
package release
