// Package staging reclaims scratch space left under the staging directory by
// failed or abandoned assembly attempts.
package staging
