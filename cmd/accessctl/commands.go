package main

import (
	"errors"
	"time"

	"github.com/jacksonlee411/fleet-console/internal/server"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/spf13/cobra"
)

func (c *cli) checkCmd() *cobra.Command {
	var technicianID int64
	var imei string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a technician's access to a device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			d, err := e.svc.CheckAccess(cmd.Context(), technicianID, imei)
			if err != nil {
				return err
			}
			return c.printJSON(d)
		},
	}
	cmd.Flags().Int64Var(&technicianID, "technician", 0, "technician id")
	cmd.Flags().StringVar(&imei, "imei", "", "device IMEI")
	_ = cmd.MarkFlagRequired("technician")
	_ = cmd.MarkFlagRequired("imei")
	return cmd
}

func (c *cli) checkAdminCmd() *cobra.Command {
	var userID, resellerID int64
	var imei string
	cmd := &cobra.Command{
		Use:   "check-admin",
		Short: "Check an administrator's access to a device; omit --reseller for a super-admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			var reseller *int64
			if cmd.Flags().Changed("reseller") {
				reseller = &resellerID
			}
			d, err := e.svc.CheckAdminAccess(cmd.Context(), userID, reseller, imei)
			if err != nil {
				return err
			}
			return c.printJSON(d)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "administrator user id")
	cmd.Flags().Int64Var(&resellerID, "reseller", 0, "reseller id")
	cmd.Flags().StringVar(&imei, "imei", "", "device IMEI")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("imei")
	return cmd
}

type verifyOutput struct {
	VerificationID int64          `json:"verification_id,omitempty"`
	Decision       types.Decision `json:"decision"`
}

func (c *cli) verifyCmd() *cobra.Command {
	var technicianID, adminUserID, resellerID int64
	var imei, status, notes string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Record a device verification if the caller may access the device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			capability, err := verifyCapability(cmd, technicianID, adminUserID, resellerID)
			if err != nil {
				return err
			}
			e, err := c.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			res, err := e.svc.VerifyDevice(cmd.Context(), capability, imei, types.VerificationPayload{
				Status: types.VerificationStatus(status),
				Notes:  notes,
			})
			if err != nil {
				return err
			}
			return c.printJSON(verifyOutput{VerificationID: res.VerificationID, Decision: res.Decision})
		},
	}
	cmd.Flags().Int64Var(&technicianID, "technician", 0, "technician id")
	cmd.Flags().Int64Var(&adminUserID, "admin-user", 0, "administrator user id")
	cmd.Flags().Int64Var(&resellerID, "reseller", 0, "reseller id of the administrator")
	cmd.Flags().StringVar(&imei, "imei", "", "device IMEI")
	cmd.Flags().StringVar(&status, "status", string(types.VerificationPassed), "passed|failed")
	cmd.Flags().StringVar(&notes, "notes", "", "free text notes")
	cmd.MarkFlagsMutuallyExclusive("technician", "admin-user")
	cmd.MarkFlagsOneRequired("technician", "admin-user")
	_ = cmd.MarkFlagRequired("imei")
	return cmd
}

func verifyCapability(cmd *cobra.Command, technicianID, adminUserID, resellerID int64) (types.Capability, error) {
	switch {
	case cmd.Flags().Changed("technician"):
		if cmd.Flags().Changed("reseller") {
			return nil, errors.New("--reseller only applies with --admin-user")
		}
		return types.TechnicianCapability{TechnicianID: technicianID}, nil
	case cmd.Flags().Changed("reseller"):
		return types.ResellerAdminCapability{UserID: adminUserID, ResellerID: resellerID}, nil
	default:
		return types.SuperAdminCapability{UserID: adminUserID}, nil
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var p server.Principal
	var resellerID int64
	var secret string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = c.v.GetString("auth-jwt-secret")
			}
			if cmd.Flags().Changed("reseller") {
				p.ResellerID = &resellerID
			}
			if _, err := p.Capability(); err != nil {
				return err
			}
			tok, err := server.IssueToken([]byte(secret), p, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(tok + "\n"))
			return err
		},
	}
	cmd.Flags().Int64Var(&p.UserID, "user", 0, "user id (sub claim)")
	cmd.Flags().StringVar(&p.Role, "role", "", "technician|reseller-admin|superadmin")
	cmd.Flags().Int64Var(&p.TechnicianID, "technician", 0, "technician id for technician tokens")
	cmd.Flags().Int64Var(&resellerID, "reseller", 0, "reseller id")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
